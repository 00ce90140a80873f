package input

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	simplecontent "github.com/tendant/simple-content/pkg/simplecontent"
)

// ContentStore is the part of the simple-content service the resolver needs.
type ContentStore interface {
	DownloadContent(ctx context.Context, contentID uuid.UUID) (io.ReadCloser, error)
}

var _ ContentStore = (simplecontent.Service)(nil)

func (r *Resolver) fetchContent(ctx context.Context, rawID string) (*Resolved, error) {
	if r.content == nil {
		return nil, InputError("content_id given but no content store is configured", nil)
	}
	contentID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, InputError(fmt.Sprintf("invalid content_id %q", rawID), err)
	}

	reader, err := r.content.DownloadContent(ctx, contentID)
	if err != nil {
		return nil, NetworkError("download content", 0, err)
	}
	defer reader.Close()

	path, err := r.writeTemp(reader)
	if err != nil {
		return nil, NetworkError("read content", 0, err)
	}
	return &Resolved{Path: path, Kind: ByContent, Ephemeral: true}, nil
}
