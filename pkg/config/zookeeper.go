package config

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

// zookeeperProvider adapts a ZooKeeper connection to koanf's byte-reader
// Provider interface, so a zookeeper layer merges the same way the file,
// consul, and etcd layers do. Grounded on the teacher's
// config.ZookeeperProvider, trimmed to the read path Loader needs — the
// teacher's Watch loop isn't reused since Loader's reload story is the
// fsnotify-driven file layer, not a per-backend watch callback.
type zookeeperProvider struct {
	conn *zk.Conn
	path string
}

func newZookeeperProvider(endpoints []string, path string) (*zookeeperProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("config: zookeeper endpoints are required")
	}
	if path == "" {
		return nil, fmt.Errorf("config: zookeeper path is required")
	}
	conn, _, err := zk.Connect(endpoints, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config: connect to zookeeper: %w", err)
	}
	return &zookeeperProvider{conn: conn, path: path}, nil
}

// ReadBytes satisfies koanf.Provider for backends that hand back raw bytes
// to be run through a parser (yaml, in Loader's case).
func (p *zookeeperProvider) ReadBytes() ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("config: read zookeeper path %s: %w", p.path, err)
	}
	return data, nil
}

// Read is unused by Loader (it always parses via ReadBytes+yaml) but is
// required to satisfy koanf.Provider.
func (p *zookeeperProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("config: zookeeperProvider.Read unsupported, use ReadBytes")
}

func (p *zookeeperProvider) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
