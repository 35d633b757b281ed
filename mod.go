// Package pactum implements a centralized execution node for a declarative
// constraint-checking protocol: clients deploy contracts made of predicates
// and submit solutions against them, and the node periodically assembles
// accepted solutions into sequentially numbered blocks.
package pactum

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.InfoLevel)
