package identity

import (
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/yola1107/blackjack/library/shard"
	"github.com/yola1107/blackjack/pkg/codes"
)

// UnknownName is returned by NameOf for players without an identity.
const UnknownName = "Unknown"

// Directory binds connections to the player identity chosen with SET_NAME.
type Directory struct {
	names    *shard.Map[string] // playerID -> name
	playerOf *shard.Map[string] // connID -> playerID
	connOf   *shard.Map[string] // playerID -> connID
}

func NewDirectory() *Directory {
	return &Directory{
		names:    shard.New[string](),
		playerOf: shard.New[string](),
		connOf:   shard.New[string](),
	}
}

// SetName issues a fresh player id for connID. Any id previously bound to
// connID loses its name and connection mapping and is returned as previous.
func (d *Directory) SetName(connID, name string) (playerID, previous string, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", codes.ErrNameRequired
	}
	playerID = uuid.NewString()
	d.names.Store(playerID, name)
	d.connOf.Store(playerID, connID)

	if old, ok := d.playerOf.Load(connID); ok {
		previous = old
	}
	d.playerOf.Store(connID, playerID)
	if previous != "" {
		d.names.Delete(previous)
		d.connOf.DeleteIf(previous, func(c string) bool { return c == connID })
		log.Debugf("identity replaced. conn=%s old=%s new=%s", connID, previous, playerID)
	}
	return playerID, previous, nil
}

func (d *Directory) NameOf(playerID string) string {
	if name, ok := d.names.Load(playerID); ok {
		return name
	}
	return UnknownName
}

func (d *Directory) ConnectionOf(playerID string) (string, bool) {
	return d.connOf.Load(playerID)
}

func (d *Directory) PlayerOf(connID string) (string, bool) {
	return d.playerOf.Load(connID)
}

// RemoveIdentity forgets playerID. The reverse mapping is only dropped if
// it still points at playerID.
func (d *Directory) RemoveIdentity(playerID string) {
	d.names.Delete(playerID)
	if connID, ok := d.connOf.LoadAndDelete(playerID); ok {
		d.playerOf.DeleteIf(connID, func(p string) bool { return p == playerID })
	}
}

func (d *Directory) Len() int { return d.names.Len() }
