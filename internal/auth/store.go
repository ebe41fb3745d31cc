package auth

import "context"

//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks UserStore

type UserStore interface {
	FindByUsername(ctx context.Context, username string) (User, error)
}
