package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/safeshare/internal/client/models"
	"github.com/dmitrijs2005/safeshare/internal/client/peer"
	"github.com/dmitrijs2005/safeshare/internal/filex"
	"github.com/dmitrijs2005/safeshare/internal/transfer"
	"github.com/spf13/cobra"
)

func sendCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "send <file>",
		Short: "Offer a file and print the code the receiver needs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Send(cmd.Context(), args[0])
		},
	}
}

// Send offers the file at path and blocks until the receiver has it.
func (a *App) Send(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	meta, err := describe(f, path)
	if err != nil {
		return err
	}

	rec := a.begin(ctx, models.RoleSend, "", meta)
	err = a.send(ctx, f, meta, rec)
	status := a.finish(ctx, rec, err)
	fmt.Fprintf(a.out, "%s: %s\n", meta.Name, status)
	if err != nil {
		return fmt.Errorf("send %s: %w", meta.Name, err)
	}
	return nil
}

func (a *App) send(ctx context.Context, r io.Reader, meta transfer.Metadata, rec *models.Transfer) error {
	sig, err := a.signaler(ctx)
	if err != nil {
		return err
	}

	s := peer.NewSender(sig, a.peerOptions(), a.logger)
	defer s.Close()

	code, err := s.Start(ctx, meta)
	if err != nil {
		return err
	}
	rec.Code = code
	fmt.Fprintf(a.out, "Code: %s\nOn the receiving side run: safeshare receive %s\n", code, code)

	bar := newProgressBar(a.out, "sending "+meta.Name)
	err = s.Transfer(ctx, r, bar.report())
	bar.end()
	return err
}

// describe builds the offered metadata and rewinds f.
func describe(f *os.File, path string) (transfer.Metadata, error) {
	st, err := f.Stat()
	if err != nil {
		return transfer.Metadata{}, err
	}
	if st.IsDir() {
		return transfer.Metadata{}, fmt.Errorf("%s is a directory", path)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return transfer.Metadata{}, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return transfer.Metadata{}, err
	}

	return transfer.Metadata{
		Name:      filepath.Base(path),
		SizeBytes: st.Size(),
		MimeType:  filex.MimeType(path, head[:n]),
	}, nil
}
