package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "millennium"
	tokenTTL    = time.Minute
)

// WebSocketTransport dials browser contexts over WebSocket text frames.
type WebSocketTransport struct {
	secret    []byte
	readLimit int64
}

// NewWebSocketTransport returns a transport that signs a bearer token with
// secret on every handshake. An empty secret sends no token.
func NewWebSocketTransport(secret string, readLimit int64) *WebSocketTransport {
	t := &WebSocketTransport{readLimit: readLimit}
	if secret != "" {
		t.secret = []byte(secret)
	}
	return t
}

// Dial performs the WebSocket handshake with endpoint.
func (t *WebSocketTransport) Dial(ctx context.Context, target Target, endpoint string) (Conn, error) {
	opts := &websocket.DialOptions{}
	if len(t.secret) > 0 {
		token, err := SignToken(t.secret, target, tokenTTL)
		if err != nil {
			return nil, err
		}
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	c, _, err := websocket.Dial(ctx, endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if t.readLimit > 0 {
		c.SetReadLimit(t.readLimit)
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("websocket read: %w", err)
	}
	return data, nil
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (w *wsConn) Close(reason string) error {
	return w.conn.Close(websocket.StatusNormalClosure, reason)
}

func (w *wsConn) CloseNow() error {
	return w.conn.CloseNow()
}

// SignToken issues the HS256 handshake token for target.
func SignToken(secret []byte, target Target, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   target.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign handshake token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a handshake token and returns its subject.
func VerifyToken(secret []byte, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("verify handshake token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("verify handshake token: missing subject")
	}
	return claims.Subject, nil
}
