package signature_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrustux/rustica/pkg/signature"
)

func TestSignatureSoundness(t *testing.T) {
	key, err := signature.Generate()
	require.NoError(t, err)

	verifier := signature.Verifier{PublicKey: key.Public}

	data := []byte("archive bytes")
	sig := key.Sign(data)
	assert.NoError(t, verifier.Verify(data, sig))

	other := []byte("different archive bytes")
	assert.Error(t, verifier.Verify(other, sig))
}

func TestSignatureBase64RoundTrip(t *testing.T) {
	key, err := signature.Generate()
	require.NoError(t, err)

	sig := key.Sign([]byte("payload"))
	parsed, err := signature.ParseSignature(sig.Base64())
	require.NoError(t, err)
	assert.Equal(t, sig, parsed)
}

func TestChecksumDeterministic(t *testing.T) {
	data := []byte("hello world")
	assert.Equal(t, signature.Checksum(data), signature.Checksum(data))
	assert.Len(t, signature.Checksum(data), 64)
}

func TestKeyPairRoundTrip(t *testing.T) {
	key, err := signature.Generate()
	require.NoError(t, err)

	imported, err := signature.ImportPrivateKeyBase64(key.PrivateKeyBase64())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKeyBase64(), imported.PublicKeyBase64())
}
