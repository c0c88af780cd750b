package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte { return make([]byte, 32) }

func TestEncryptDecryptRoundtrip(t *testing.T) {
	plaintext := []byte("device secret material")

	ciphertext, err := Encrypt(testKey(), plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(testKey(), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	a, err := Encrypt(testKey(), []byte("same input"))
	require.NoError(t, err)
	b, err := Encrypt(testKey(), []byte("same input"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	ciphertext, err := Encrypt(testKey(), []byte("payload"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = Decrypt(testKey(), ciphertext)
	assert.Error(t, err)
}

func TestServiceRoundtrip(t *testing.T) {
	svc, err := NewService(hex.EncodeToString(testKey()))
	require.NoError(t, err)

	enc, err := svc.EncryptString("hunter2")
	require.NoError(t, err)
	dec, err := svc.DecryptString(enc)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", dec)
}

func TestNewServiceRejectsBadKey(t *testing.T) {
	_, err := NewService("not-hex")
	assert.Error(t, err)
	_, err = NewService(hex.EncodeToString(make([]byte, 16)))
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("correct horse", hash))
	assert.False(t, VerifyPassword("wrong", hash))
}

func TestChecksum(t *testing.T) {
	// CRC32 IEEE of "123456789" is the classic check value
	assert.Equal(t, "cbf43926", Checksum([]byte("123456789")))
	assert.Equal(t, "00000000", Checksum(nil))
}

func TestSaltedDigests(t *testing.T) {
	sum := sha256.Sum256([]byte("saltvalue"))
	assert.Equal(t, hex.EncodeToString(sum[:]), SaltedSHA256("salt", "value"))

	// Same input, different salt, different digest
	assert.NotEqual(t, SaltedMD5("a", "value"), SaltedMD5("b", "value"))
	assert.Len(t, SaltedMD5("salt", "value"), 32)
	assert.Len(t, SaltedSHA1("salt", "value"), 40)
	assert.Len(t, SaltedSHA512("salt", "value"), 128)
}

func TestGenerateRandomString(t *testing.T) {
	a, err := GenerateRandomString(24)
	require.NoError(t, err)
	b, err := GenerateRandomString(24)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestGenerateSalt(t *testing.T) {
	salt, err := GenerateSalt(8)
	require.NoError(t, err)
	assert.Len(t, salt, 16)
	_, err = hex.DecodeString(salt)
	assert.NoError(t, err)
}

func TestRootCAFromChain(t *testing.T) {
	leaf := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("leaf")})
	root := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("root")})
	key := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte("key")})

	chain := append(append(append([]byte{}, leaf...), root...), key...)
	got, err := RootCAFromChain(chain)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	// Single certificate is its own root
	got, err = RootCAFromChain(leaf)
	require.NoError(t, err)
	assert.Equal(t, leaf, got)

	_, err = RootCAFromChain(key)
	assert.Error(t, err)
	_, err = RootCAFromChain([]byte("not pem"))
	assert.Error(t, err)
}
