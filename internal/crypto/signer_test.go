package crypto

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test vector key (hardhat account #0). Never fund this address.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestNewSigner(t *testing.T) {
	t.Run("derives address from key", func(t *testing.T) {
		s, err := NewSigner(testKey)
		require.NoError(t, err)
		assert.Equal(t, testAddr, s.Address().Hex())
	})

	t.Run("accepts 0x prefix", func(t *testing.T) {
		s, err := NewSigner("0x" + testKey)
		require.NoError(t, err)
		assert.Equal(t, testAddr, s.Address().Hex())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := NewSigner("not-a-key")
		assert.Error(t, err)
	})
}

func TestSignAndRecover(t *testing.T) {
	s, err := NewSigner(testKey)
	require.NoError(t, err)

	msg := []byte("POST\n/api/clauses\n1700000000")

	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	assert.Len(t, sig, 2+130) // 0x + 65 bytes hex

	t.Run("round trip recovers the signer", func(t *testing.T) {
		addr, err := RecoverAddress(msg, sig)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), addr)
	})

	t.Run("different message recovers a different address", func(t *testing.T) {
		addr, err := RecoverAddress([]byte("POST\n/api/clauses\n1700000001"), sig)
		if err == nil {
			assert.NotEqual(t, s.Address(), addr)
		}
	})

	t.Run("rejects truncated signature", func(t *testing.T) {
		_, err := RecoverAddress(msg, sig[:40])
		assert.Error(t, err)
	})

	t.Run("rejects non-hex signature", func(t *testing.T) {
		_, err := RecoverAddress(msg, "0xzz")
		assert.Error(t, err)
	})

	t.Run("accepts legacy v convention", func(t *testing.T) {
		// Convert the trailing v byte from 27/28 back to 00/01.
		raw := sig[2:]
		var legacy string
		switch raw[128:] {
		case "1b":
			legacy = "0x" + raw[:128] + "00"
		case "1c":
			legacy = "0x" + raw[:128] + "01"
		default:
			t.Fatalf("unexpected v byte %q", raw[128:])
		}
		addr, err := RecoverAddress(msg, legacy)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), addr)
	})
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey(testKey, "hunter2-but-longer")
	require.NoError(t, err)

	path := t.TempDir() + "/key.json"
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	t.Run("round trip", func(t *testing.T) {
		got, err := DecryptKey(blob, "hunter2-but-longer")
		require.NoError(t, err)
		assert.Equal(t, testKey, got)
	})

	t.Run("wrong password fails", func(t *testing.T) {
		_, err := DecryptKey(blob, "wrong")
		assert.Error(t, err)
	})

	t.Run("LoadKey prefers raw key", func(t *testing.T) {
		got, err := LoadKey(KeyConfig{RawPrivateKey: testKey, EncryptedKeyPath: path, KeyPassword: "wrong"})
		require.NoError(t, err)
		assert.Equal(t, testKey, got)
	})

	t.Run("LoadKey falls back to encrypted file", func(t *testing.T) {
		got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2-but-longer"})
		require.NoError(t, err)
		assert.Equal(t, testKey, got)
	})
}
