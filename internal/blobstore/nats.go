package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore keeps blobs in a NATS JetStream object store bucket.
type NatsStore struct {
	conn   *nats.Conn
	bucket string
	store  nats.ObjectStore
}

// DialNats connects to url and binds (creating if needed) bucket.
func DialNats(url, bucket string) (*NatsStore, error) {
	nc, err := nats.Connect(url, nats.Name("bookvoice"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	s, err := NewNatsStore(js, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.conn = nc
	return s, nil
}

// NewNatsStore binds bucket on an existing JetStream context, creating the
// bucket first if it does not exist.
func NewNatsStore(js nats.JetStreamContext, bucket string) (*NatsStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Synthesized page audio",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) && !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("create object store bucket %q: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("bind object store bucket %q: %w", bucket, err)
		}
	}
	return &NatsStore{bucket: bucket, store: store}, nil
}

func (n *NatsStore) Get(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get object %q from bucket %q: %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read object %q: %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("close object %q: %w", key, closeErr)
	}
	return data, nil
}

func (n *NatsStore) Put(_ context.Context, key string, data []byte) error {
	if _, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("put object %q to bucket %q: %w", key, n.bucket, err)
	}
	return nil
}

// Close drains the connection opened by DialNats.
func (n *NatsStore) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
