package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMnemonicService_Generate(t *testing.T) {
	mnemonic := NewMnemonic(NewKdf())

	phrase, err := mnemonic.Generate()
	require.NoError(t, err)
	assert.True(t, mnemonic.Validate(phrase))
	assert.Len(t, strings.Fields(phrase), 12)
}

func TestMnemonicService_Validate(t *testing.T) {
	mnemonic := NewMnemonic(NewKdf())

	t.Run("valid mnemonic", func(t *testing.T) {
		phrase, err := mnemonic.Generate()
		require.NoError(t, err)
		assert.True(t, mnemonic.Validate(phrase))
	})

	t.Run("invalid mnemonic", func(t *testing.T) {
		assert.False(t, mnemonic.Validate("not a real mnemonic phrase at all"))
	})
}

func TestMnemonicService_DeriveKey(t *testing.T) {
	mnemonic := NewMnemonic(NewKdf())

	phrase, err := mnemonic.Generate()
	require.NoError(t, err)

	t.Run("deterministic for the same phrase", func(t *testing.T) {
		key1 := mnemonic.DeriveKey(phrase)
		key2 := mnemonic.DeriveKey(phrase)
		assert.Equal(t, key1, key2)
		assert.Len(t, key1, 32)
	})

	t.Run("different phrases derive different keys", func(t *testing.T) {
		otherPhrase, err := mnemonic.Generate()
		require.NoError(t, err)

		key1 := mnemonic.DeriveKey(phrase)
		key2 := mnemonic.DeriveKey(otherPhrase)
		assert.NotEqual(t, key1, key2)
	})
}
