package mcpbridge

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docquery/internal/store"
)

// RegisterResources loads every buffer currently in the store and exposes
// it, and each of its chunks, as an engine:// resource (§6). Call after
// New and before Serve; safe to call again after ingestion changes the
// buffer set, since the MCP SDK's AddResource overwrites by URI.
func (b *Bridge) RegisterResources(ctx context.Context) error {
	buffers, err := b.store.ListBuffers(ctx)
	if err != nil {
		return err
	}

	for _, buf := range buffers {
		b.registerBufferResource(buf)

		chunks, err := b.store.ListChunks(ctx, buf.ID)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			b.registerChunkResource(buf.Name, c)
		}
	}

	b.logger.Info("registered mcp resources", "buffers", len(buffers))
	return nil
}

func (b *Bridge) registerBufferResource(buf *store.Buffer) {
	uri := fmt.Sprintf("engine://%s", buf.Name)
	b.mcp.AddResource(
		&mcp.Resource{
			Name:        buf.Name,
			URI:         uri,
			Description: fmt.Sprintf("buffer %q (%d bytes, %d chunks)", buf.Name, buf.ByteSize, buf.ChunkCount),
			MIMEType:    mimeTypeFor(buf.ContentType),
		},
		b.makeBufferHandler(buf.Name),
	)
}

func (b *Bridge) registerChunkResource(bufferName string, c *store.Chunk) {
	uri := fmt.Sprintf("engine://%s/%d", bufferName, c.Index)
	b.mcp.AddResource(
		&mcp.Resource{
			Name:        fmt.Sprintf("%s/%d", bufferName, c.Index),
			URI:         uri,
			Description: fmt.Sprintf("chunk %d of buffer %q", c.Index, bufferName),
			MIMEType:    "text/plain",
		},
		b.makeChunkHandler(bufferName, c.Index),
	)
}

func (b *Bridge) makeBufferHandler(bufferName string) mcp.ResourceHandler {
	uri := fmt.Sprintf("engine://%s", bufferName)
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		buf, err := b.store.GetBuffer(ctx, bufferName)
		if err != nil {
			return nil, MapError(err)
		}
		if buf == nil {
			return nil, newResourceNotFoundError(uri)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: mimeTypeFor(buf.ContentType), Text: buf.Content},
			},
		}, nil
	}
}

func (b *Bridge) makeChunkHandler(bufferName string, chunkIndex int) mcp.ResourceHandler {
	uri := fmt.Sprintf("engine://%s/%d", bufferName, chunkIndex)
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		buf, err := b.store.GetBuffer(ctx, bufferName)
		if err != nil {
			return nil, MapError(err)
		}
		if buf == nil {
			return nil, newResourceNotFoundError(uri)
		}

		chunks, err := b.store.ListChunks(ctx, buf.ID)
		if err != nil {
			return nil, MapError(err)
		}
		for _, c := range chunks {
			if c.Index == chunkIndex {
				return &mcp.ReadResourceResult{
					Contents: []*mcp.ResourceContents{
						{URI: uri, MIMEType: "text/plain", Text: c.Text},
					},
				}, nil
			}
		}
		return nil, newResourceNotFoundError(uri)
	}
}

func mimeTypeFor(ct store.ContentTypeHint) string {
	switch ct {
	case store.ContentTypeMarkdown:
		return "text/markdown"
	case store.ContentTypeCode:
		return "text/x-source"
	default:
		return "text/plain"
	}
}
