package transfer

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidCollection = errors.New("invalid collection")

// DataSource is a file to publish under Name.
type DataSource struct {
	Path string
	Name string
}

// BlobInfo describes one member of a collection.
type BlobInfo struct {
	Name string `cbor:"1,keyasint"`
	Hash Hash   `cbor:"2,keyasint"`
	Size int64  `cbor:"3,keyasint"`
}

// Collection is the ordered manifest a getter receives first.
type Collection struct {
	Blobs []BlobInfo `cbor:"1,keyasint"`
}

func (c *Collection) TotalSize() int64 {
	var n int64
	for _, b := range c.Blobs {
		n += b.Size
	}
	return n
}

// Database is a provider's immutable view of the published files.
type Database struct {
	root       Hash
	encoded    []byte
	collection Collection
	paths      []string
}

func (d *Database) Root() Hash              { return d.root }
func (d *Database) Collection() *Collection { return &d.collection }

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// CreateCollection hashes sources in parallel and builds the collection in
// the given order. The root hash covers the encoded collection, which in turn
// names every blob hash.
func CreateCollection(ctx context.Context, sources []DataSource) (*Database, Hash, error) {
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if s.Name == "" {
			return nil, Hash{}, fmt.Errorf("%w: empty name for %s", ErrInvalidCollection, s.Path)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, Hash{}, fmt.Errorf("%w: duplicate name %q", ErrInvalidCollection, s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	blobs := make([]BlobInfo, len(sources))
	paths := make([]string, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, size, err := hashFile(s.Path)
			if err != nil {
				return err
			}
			blobs[i] = BlobInfo{Name: s.Name, Hash: h, Size: size}
			paths[i] = s.Path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Hash{}, err
	}

	coll := Collection{Blobs: blobs}
	encoded, err := encMode.Marshal(&coll)
	if err != nil {
		return nil, Hash{}, fmt.Errorf("encode collection: %w", err)
	}
	root := HashBytes(encoded)

	return &Database{root: root, encoded: encoded, collection: coll, paths: paths}, root, nil
}

// decodeCollection checks encoded against root before decoding it.
func decodeCollection(encoded []byte, root Hash) (*Collection, error) {
	if HashBytes(encoded) != root {
		return nil, fmt.Errorf("collection: %w", ErrHashMismatch)
	}
	var c Collection
	if err := decMode.Unmarshal(encoded, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCollection, err)
	}
	return &c, nil
}
