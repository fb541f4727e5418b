package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/safeshare/internal/client/models"
	"github.com/dmitrijs2005/safeshare/internal/client/peer"
	"github.com/dmitrijs2005/safeshare/internal/filex"
	"github.com/dmitrijs2005/safeshare/internal/transfer"
	"github.com/spf13/cobra"
)

func receiveCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "receive <code>",
		Short: "Fetch the file offered under code into the download directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Receive(cmd.Context(), args[0])
		},
	}
}

// Receive joins code and saves the delivered file under DownloadDir.
func (a *App) Receive(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))

	rec := a.begin(ctx, models.RoleReceive, code, transfer.Metadata{})
	saved, err := a.receive(ctx, code, rec)
	status := a.finish(ctx, rec, err)
	if err != nil {
		fmt.Fprintf(a.out, "%s: %s\n", code, status)
		return fmt.Errorf("receive %s: %w", code, err)
	}

	fmt.Fprintf(a.out, "%s: %s, saved to %s\n", rec.FileName, status, saved)
	return nil
}

func (a *App) receive(ctx context.Context, code string, rec *models.Transfer) (string, error) {
	sig, err := a.signaler(ctx)
	if err != nil {
		return "", err
	}

	r := peer.NewReceiver(sig, a.peerOptions(), a.logger)
	defer r.Close()

	var saved string
	deliver := func(f transfer.File) error {
		rec.FileName, rec.SizeBytes, rec.MimeType = f.Name, f.SizeBytes, f.MimeType
		path, err := filex.SaveUnique(a.config.DownloadDir, f.Name, f.Data)
		if err != nil {
			return err
		}
		saved = path
		a.logger.Info(ctx, "file saved", "path", path, "digest", f.Digest)
		return nil
	}

	bar := newProgressBar(a.out, "receiving "+code)
	err = r.Receive(ctx, code, deliver, bar.report())
	bar.end()
	return saved, err
}
