// Package mocks provides gomock implementations of the gateway ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/gateway
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	authn := mocks.NewMockAuthenticator(ctrl)
//	authn.EXPECT().Login(gomock.Any(), "student", "secret").Return(snap, nil)
package mocks
