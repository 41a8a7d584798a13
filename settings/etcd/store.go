// Package etcd provides an etcd-backed settings store, for deployments
// that already run etcd for leader election.
package etcd

import (
	"context"
	"path"

	"github.com/fxamacker/cbor/v2"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/luno/rolesbot/settings"
)

// encMode uses Core Deterministic Encoding so equal settings always
// produce identical values.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("etcd: CBOR encoder initialization failed: " + err.Error())
	}
}

type record struct {
	AutoRoles []string `cbor:"auto_roles"`
}

// Store keeps each server's settings under <prefix>/servers/<server id>.
type Store struct {
	cli    *clientv3.Client
	prefix string
}

var _ settings.Store = (*Store)(nil)

func New(cli *clientv3.Client, prefix string) *Store {
	return &Store{cli: cli, prefix: prefix}
}

func (s *Store) key(serverID string) string {
	return path.Join(s.prefix, "servers", serverID)
}

func (s *Store) Get(ctx context.Context, serverID string) (settings.ServerSettings, bool, error) {
	resp, err := s.cli.Get(ctx, s.key(serverID))
	if err != nil {
		return settings.ServerSettings{}, false, errors.Wrap(err, "etcd get settings", j.KV("server", serverID))
	}
	if len(resp.Kvs) == 0 {
		return settings.ServerSettings{}, false, nil
	}
	var r record
	if err := cbor.Unmarshal(resp.Kvs[0].Value, &r); err != nil {
		return settings.ServerSettings{}, false, errors.Wrap(err, "settings decode", j.KV("server", serverID))
	}
	return settings.ServerSettings{ServerID: serverID, AutoRoles: r.AutoRoles}, true, nil
}

func (s *Store) Save(ctx context.Context, ss settings.ServerSettings) error {
	if ss.ServerID == "" {
		return errors.New("server id is required")
	}
	val, err := encMode.Marshal(record{AutoRoles: ss.AutoRoles})
	if err != nil {
		return errors.Wrap(err, "settings encode")
	}
	_, err = s.cli.Put(ctx, s.key(ss.ServerID), string(val))
	if err != nil {
		return errors.Wrap(err, "etcd put settings", j.KV("server", ss.ServerID))
	}
	return nil
}
