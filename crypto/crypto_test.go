package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/ledgerd/crypto"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.SerializeUncompressedPublicKey(priv.PubKey())

	digest := crypto.Sha256Hex([]byte("message"))
	sig, err := crypto.Sign(priv, digest)
	require.NoError(t, err)
	assert.True(t, crypto.Verify(pub, sig, digest), "Verify rejected a signature produced by Sign")
}

func TestVerifyRejectsWrongDigest(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.SerializeUncompressedPublicKey(priv.PubKey())

	sig, err := crypto.Sign(priv, crypto.Sha256Hex([]byte("message")))
	require.NoError(t, err)
	assert.False(t, crypto.Verify(pub, sig, crypto.Sha256Hex([]byte("different message"))),
		"Verify accepted a signature against the wrong digest")
}

func TestAddressRoundTrip(t *testing.T) {
	priv, address, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.SerializeUncompressedPublicKey(priv.PubKey())

	derived, err := crypto.AddressFromPublicKey(pub)
	require.NoError(t, err)
	assert.Equal(t, address, derived)

	_, err = crypto.PubKeyHashFromAddress(address)
	assert.NoError(t, err, "PubKeyHashFromAddress rejected a valid address")
}

func TestPubKeyHashFromAddressRejectsTamperedChecksum(t *testing.T) {
	_, address, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	tampered := address[:len(address)-1] + "X"
	_, err = crypto.PubKeyHashFromAddress(tampered)
	assert.Error(t, err, "PubKeyHashFromAddress accepted a tampered address")
}

func TestSha256dDiffersFromSha256(t *testing.T) {
	single := crypto.Sha256Hex([]byte("payload"))
	double := crypto.Sha256dHex([]byte("payload"))
	assert.NotEqual(t, single, double)
}
