package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	ozzo "github.com/jellydator/validation"
	"github.com/urfave/cli/v3"

	"github.com/allisson/secrets/internal/app"
	"github.com/allisson/secrets/internal/config"
	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
	appValidation "github.com/allisson/secrets/internal/validation"
)

// credentialsInput bundles the email/password pair shared by commands that
// authenticate against the control plane, so the validation rules live in
// one place.
type credentialsInput struct {
	Email    string
	Password string
}

func (c credentialsInput) Validate() error {
	err := ozzo.ValidateStruct(&c,
		ozzo.Field(&c.Email,
			ozzo.Required.Error("email is required"),
			appValidation.NotBlank,
			appValidation.Email,
		),
		ozzo.Field(&c.Password,
			ozzo.Required.Error("password is required"),
			appValidation.NotBlank,
		),
	)
	return appValidation.WrapValidationError(err)
}

// generateKeypairCommand creates a fresh X25519 cloud keypair, encrypts the
// private half under a passphrase, and generates a recovery mnemonic as a
// second way back to the same key.
func generateKeypairCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate-keypair",
		Usage: "Generate a new cloud sharing keypair protected by a passphrase",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "passphrase", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			passphrase := cmd.String("passphrase")
			if err := ozzo.Validate(passphrase, appValidation.PasswordStrength{
				MinLength:     12,
				RequireUpper:  true,
				RequireLower:  true,
				RequireNumber: true,
			}); err != nil {
				return appValidation.WrapValidationError(err)
			}

			container := app.NewContainer(config.Load())
			logger := container.Logger()

			keypair, err := container.EnvelopeService().GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("failed to generate keypair: %w", err)
			}

			protected, err := container.EnvelopeService().EncryptPrivateKey(keypair.Secret, passphrase)
			if err != nil {
				return fmt.Errorf("failed to protect private key: %w", err)
			}

			mnemonic, recoveryBlob, err := container.Recovery().CreateBlob(keypair.Secret)
			if err != nil {
				return fmt.Errorf("failed to create recovery blob: %w", err)
			}

			logger.Info("keypair generated", "public_key", base64.StdEncoding.EncodeToString(keypair.Public[:]))
			fmt.Println("Public key:", base64.StdEncoding.EncodeToString(keypair.Public[:]))
			fmt.Println("Protected private key salt:", base64.StdEncoding.EncodeToString(protected.Salt[:]))
			fmt.Println("Protected private key nonce:", base64.StdEncoding.EncodeToString(protected.Encrypted.Nonce))
			fmt.Println("Protected private key ciphertext:", base64.StdEncoding.EncodeToString(protected.Encrypted.Ciphertext))
			fmt.Println("Recovery mnemonic (write this down, it is shown once):", mnemonic)
			fmt.Println("Recovery blob nonce:", base64.StdEncoding.EncodeToString(recoveryBlob.EncryptedKey.Nonce))
			fmt.Println("Recovery blob ciphertext:", base64.StdEncoding.EncodeToString(recoveryBlob.EncryptedKey.Ciphertext))
			return nil
		},
	}
}

// recoverKeypairCommand reconstructs a private key from its recovery
// mnemonic and re-protects it under a new passphrase.
func recoverKeypairCommand() *cli.Command {
	return &cli.Command{
		Name:  "recover-keypair",
		Usage: "Recover a private key from its mnemonic and re-protect it with a new passphrase",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mnemonic", Required: true},
			&cli.StringFlag{Name: "blob-nonce", Required: true, Usage: "base64-encoded recovery blob nonce"},
			&cli.StringFlag{Name: "blob-ciphertext", Required: true, Usage: "base64-encoded recovery blob ciphertext"},
			&cli.StringFlag{Name: "new-passphrase", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := ozzo.Validate(cmd.String("blob-nonce"), ozzo.Required, appValidation.Base64); err != nil {
				return appValidation.WrapValidationError(err)
			}
			if err := ozzo.Validate(cmd.String("blob-ciphertext"), ozzo.Required, appValidation.Base64); err != nil {
				return appValidation.WrapValidationError(err)
			}

			container := app.NewContainer(config.Load())

			nonce, err := base64.StdEncoding.DecodeString(cmd.String("blob-nonce"))
			if err != nil {
				return fmt.Errorf("invalid blob-nonce: %w", err)
			}
			ciphertext, err := base64.StdEncoding.DecodeString(cmd.String("blob-ciphertext"))
			if err != nil {
				return fmt.Errorf("invalid blob-ciphertext: %w", err)
			}

			blob := cryptoDomain.RecoveryBlob{
				EncryptedKey: cryptoDomain.EncryptedData{Nonce: nonce, Ciphertext: ciphertext},
				CreatedAt:    time.Now(),
			}

			secretKey, err := container.Recovery().OpenBlob(blob, cmd.String("mnemonic"))
			if err != nil {
				return fmt.Errorf("failed to open recovery blob: %w", err)
			}

			protected, err := container.EnvelopeService().EncryptPrivateKey(secretKey, cmd.String("new-passphrase"))
			if err != nil {
				return fmt.Errorf("failed to re-protect private key: %w", err)
			}

			fmt.Println("Recovered. New protected private key salt:", base64.StdEncoding.EncodeToString(protected.Salt[:]))
			fmt.Println("New protected private key nonce:", base64.StdEncoding.EncodeToString(protected.Encrypted.Nonce))
			fmt.Println("New protected private key ciphertext:", base64.StdEncoding.EncodeToString(protected.Encrypted.Ciphertext))
			return nil
		},
	}
}

// bootstrapWorkspaceCommand authenticates against the control plane,
// registers a workspace and this device, and uploads the device's public
// key so other devices can share DEKs with it.
func bootstrapWorkspaceCommand() *cli.Command {
	return &cli.Command{
		Name:  "bootstrap-workspace",
		Usage: "Authenticate, register a workspace and this device with the control plane",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true},
			&cli.StringFlag{Name: "workspace-id", Required: true},
			&cli.StringFlag{Name: "workspace-name", Required: true},
			&cli.StringFlag{Name: "device-name", Value: "cli"},
			&cli.StringFlag{Name: "public-key", Required: true, Usage: "base64-encoded X25519 public key"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			creds := credentialsInput{Email: cmd.String("email"), Password: cmd.String("password")}
			if err := creds.Validate(); err != nil {
				return err
			}
			if err := ozzo.Validate(cmd.String("public-key"), ozzo.Required, appValidation.Base64); err != nil {
				return appValidation.WrapValidationError(err)
			}

			container := app.NewContainer(config.Load())
			logger := container.Logger()
			client := container.ControlPlane()

			tokens, err := client.Authenticate(ctx, creds.Email, creds.Password)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			logger.Info("authenticated", "user_id", tokens.UserID)

			workspace, err := client.RegisterWorkspace(ctx, cmd.String("workspace-id"), cmd.String("workspace-name"))
			if err != nil {
				return fmt.Errorf("workspace registration failed: %w", err)
			}

			deviceID := uuid.NewString()
			if err := client.RegisterDevice(ctx, cmd.String("device-name"), "cli", deviceID); err != nil {
				return fmt.Errorf("device registration failed: %w", err)
			}

			publicKeyBytes, err := base64.StdEncoding.DecodeString(cmd.String("public-key"))
			if err != nil || len(publicKeyBytes) != 32 {
				return fmt.Errorf("public key must be 32 base64-decoded bytes")
			}
			var publicKey [32]byte
			copy(publicKey[:], publicKeyBytes)
			if err := client.UploadPublicKey(ctx, publicKey); err != nil {
				return fmt.Errorf("public key upload failed: %w", err)
			}

			fmt.Println("Workspace:", workspace.WorkspaceID, "S3 prefix:", workspace.S3Prefix)
			fmt.Println("Device ID:", deviceID)
			fmt.Println("User ID:", tokens.UserID)
			return nil
		},
	}
}

// runCommand starts the sync engine for an already-bootstrapped session and
// blocks until interrupted.
func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the cloud sync engine for one workspace and device",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true},
			&cli.StringFlag{Name: "workspace-id", Required: true},
			&cli.StringFlag{Name: "device-id", Required: true},
			&cli.Int64Flag{Name: "user-id", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			container := app.NewContainer(config.Load())
			logger := container.Logger()
			client := container.ControlPlane()

			creds := credentialsInput{Email: cmd.String("email"), Password: cmd.String("password")}
			if err := creds.Validate(); err != nil {
				return err
			}
			if _, err := client.Authenticate(ctx, creds.Email, creds.Password); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			session := container.NewSession(cmd.Int64("user-id"), cmd.String("workspace-id"), cmd.String("device-id"))

			runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger.Info("starting cloud sync engine",
				"workspace_id", session.WorkspaceID, "device_id", session.DeviceID)
			session.Run(runCtx)

			return container.Shutdown(context.Background())
		},
	}
}
