package brickv

import (
	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
)

// Connect builds a session on the given transport and creates it on the
// server. The returned session runs its keep-alive task until Close.
func Connect(transport protocol.Transport, opts ...session.Option) (*session.Session, error) {
	sess, err := session.New(transport, opts...)
	if err != nil {
		return nil, err
	}
	if err := sess.Create(); err != nil {
		return nil, err
	}
	return sess, nil
}
