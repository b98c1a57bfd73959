package websocket

import (
	"encoding/base64"

	"github.com/nats-io/nkeys"
	"github.com/pkg/errors"
)

// signNKeyChallenge signs the handshake's Sec-WebSocket-Key nonce with the
// given nkey seed, producing the value sent as X-Nkey-Signature. This
// mirrors, from the client side, the JWT-cookie auth hook the teacher's
// own wsUpgrade reads off incoming requests (ws.cookieJwt): a server that
// wants to authenticate the websocket handshake itself, rather than
// relying on a cookie or bearer header, can verify this signature against
// the nkey's public key before completing the Upgrade.
func signNKeyChallenge(seed, nonce string) (string, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return "", errors.Wrap(err, "parsing nkey seed")
	}
	sig, err := kp.Sign([]byte(nonce))
	if err != nil {
		return "", errors.Wrap(err, "signing handshake nonce")
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}
