package main

import (
	"github.com/astralhq/keychain/internal/server"
	"github.com/astralhq/keychain/pkg/db"
	"github.com/astralhq/keychain/pkg/log"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		log.Module,
		db.Module,
		server.Module,
	).Run()
}
