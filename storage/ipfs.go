package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/storage-router/interfaces"
)

const (
	DefaultIPFSRoot    = "/storage"
	DefaultIPFSGateway = "https://ipfs.io"
)

// IPFSDriver stores blobs in the mutable file system (MFS) of an IPFS node.
// Keys map to MFS paths under root; the returned URL addresses the content
// through a gateway by CID, which is only known after the write.
type IPFSDriver struct {
	shell   *shell.Shell
	apiAddr string
	root    string
	gateway string
	log     *slog.Logger
}

var _ interfaces.Driver = (*IPFSDriver)(nil)

// NewIPFSDriver creates a driver talking to the IPFS HTTP API at apiAddr (host:port).
func NewIPFSDriver(apiAddr, root, gateway string, log *slog.Logger) (*IPFSDriver, error) {
	if apiAddr == "" {
		return nil, fmt.Errorf("%w: empty IPFS API address", interfaces.ErrConfiguration)
	}
	if log == nil {
		log = slog.Default()
	}
	if root == "" {
		root = DefaultIPFSRoot
	}
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}

	sh := shell.NewShell(apiAddr)
	sh.SetTimeout(30 * time.Second)

	return &IPFSDriver{
		shell:   sh,
		apiAddr: apiAddr,
		root:    "/" + strings.Trim(root, "/"),
		gateway: strings.TrimSuffix(gateway, "/"),
		log:     log,
	}, nil
}

// Put writes data to <root>/<key> in MFS and returns the gateway URL of the resulting CID.
func (d *IPFSDriver) Put(ctx context.Context, key string, data []byte, contentType string) (*interfaces.PutResult, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	mfsPath := path.Join(d.root, key)

	err = d.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return nil, fmt.Errorf("failed to write to IPFS: %w", err)
	}

	stat, err := d.shell.FilesStat(ctx, mfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat IPFS path: %w", err)
	}

	d.log.Debug("Stored blob in IPFS",
		slog.String("path", mfsPath),
		slog.String("cid", stat.Hash),
		slog.Int("size", len(data)))

	return &interfaces.PutResult{
		Key: key,
		URL: fmt.Sprintf("%s/ipfs/%s", d.gateway, stat.Hash),
	}, nil
}

// Delete removes the MFS entry. The content stays addressable until garbage collected.
func (d *IPFSDriver) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	err = d.shell.FilesRm(ctx, path.Join(d.root, key), true)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil
		}
		return fmt.Errorf("failed to remove IPFS path: %w", err)
	}
	return nil
}

// Health checks that the IPFS node answers.
func (d *IPFSDriver) Health(ctx context.Context) interfaces.HealthStatus {
	if !d.shell.IsUp() {
		d.log.Debug("IPFS node unavailable", slog.String("api", d.apiAddr))
		return interfaces.HealthStatus{OK: false, Message: "ipfs node unreachable at " + d.apiAddr}
	}
	return interfaces.Healthy()
}
