package console

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"moviesnow/internal/api"
	"moviesnow/internal/uploads"
	"moviesnow/pkg/apierror"
)

// apiUploadTransport registers uploads with the ingest endpoint. The
// sandbox and the real platform both take a registration record rather
// than raw bytes over this path; the byte transfer happens out of band.
type apiUploadTransport struct {
	client *api.Client
}

func (t *apiUploadTransport) Upload(ctx context.Context, item uploads.Item, progress func(float64)) error {
	progress(0)
	req := api.NewRequest("uploads.register", http.MethodPost, "/api/v1/admin/uploads",
		api.WithIdempotencyKey(item.IdempotencyKey),
		api.WithJSON(map[string]any{
			"path":       item.Path,
			"size_bytes": item.SizeBytes,
		}),
	)
	if err := t.client.Do(ctx, req, nil); err != nil {
		return err
	}
	progress(1)
	return nil
}

// cmdUpload pushes one or more files through the upload queue and
// reports each item's final state.
func (a *App) cmdUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bundles upload", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	workers := fs.Int("workers", 3, "concurrent uploads")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return apierror.New(apierror.CodeValidation, "usage: bundles upload [--workers n] <path>...")
	}

	queue := uploads.NewQueue(&apiUploadTransport{client: a.client},
		uploads.WithConcurrency(*workers),
		uploads.WithLogger(a.logger),
		uploads.WithMetrics(a.uploadMetrics),
	)
	defer queue.Close()

	ids := make([]string, 0, fs.NArg())
	for _, path := range fs.Args() {
		size := int64(0)
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		id, err := queue.Enqueue(path, size)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	queue.Wait()

	failed := 0
	for _, id := range ids {
		item, ok := queue.Item(id)
		if !ok {
			continue
		}
		if item.State == uploads.StateFailed {
			failed++
			fmt.Fprintf(a.errOut, "%s: %v\n", item.Path, item.Err)
			continue
		}
		if !a.json {
			fmt.Fprintf(a.out, "%s: %s\n", item.Path, item.State)
		}
	}
	if failed > 0 {
		return apierror.New(apierror.CodeInternal, fmt.Sprintf("%d upload(s) failed", failed))
	}
	return nil
}
