package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ServerPool struct {
	bun.BaseModel `bun:"table:server_pools,alias:sp"`

	ID          int64  `bun:",pk,autoincrement"`
	Name        string `bun:",unique,notnull"`
	Description string

	Servers []Server `bun:"m2m:server_pool_servers,join:ServerPool=Server"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// ServerPoolServer is the membership join table. A server may belong to any
// number of pools.
type ServerPoolServer struct {
	bun.BaseModel `bun:"table:server_pool_servers,alias:sps"`

	ServerPoolID int64       `bun:",pk"`
	ServerPool   *ServerPool `bun:"rel:belongs-to,join:server_pool_id=id"`
	ServerID     int64       `bun:",pk"`
	Server       *Server     `bun:"rel:belongs-to,join:server_id=id"`
}
