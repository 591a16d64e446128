package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rheldev6-ship-it/integ/internal/app"
	"github.com/rheldev6-ship-it/integ/internal/config"
	"github.com/rheldev6-ship-it/integ/internal/services/resolver"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

var Cmd = &cobra.Command{
	Use:   "resolve <requirement>",
	Short: "Resolve a usable runtime for a game's version requirement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		requirement := args[0]

		integ, err := app.NewApp(config.GetConfig())
		if err != nil {
			return err
		}
		defer integ.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		done := make(chan resolver.Resolution, 1)
		go func() {
			done <- integ.ResolveRuntime(ctx, requirement)
		}()

		res := watchProgress(ctx, integ, requirement, done)
		defer res.Release()

		switch res.Outcome {
		case resolver.OutcomeRequested:
			fmt.Printf("runtime %s ready at %s\n", res.VersionID, res.Path)
		case resolver.OutcomeCachedAlternate:
			fmt.Printf("warning: %s unavailable, using cached %s at %s\n",
				requirement, res.VersionID, res.Path)
		case resolver.OutcomeSystemFallback:
			fmt.Printf("warning: %s unavailable, using system runtime at %s\n",
				requirement, res.Path)
		default:
			return fmt.Errorf("failed to resolve %s: %w", requirement, res.Reason)
		}

		return nil
	},
}

// watchProgress renders a download progress bar while the resolver works.
// The bar only appears once bytes start moving, so cache hits stay silent.
func watchProgress(ctx context.Context, integ *app.App, versionID string, done <-chan resolver.Resolution) resolver.Resolution {
	progress := mpb.New(
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)

	var bar *mpb.Bar
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	ctxDone := ctx.Done()
	for {
		select {
		case res := <-done:
			if bar != nil {
				bar.Abort(true)
			}
			progress.Wait()
			return res
		case <-ticker.C:
			snap := integ.InstallProgress(versionID)
			if snap.BytesDone == 0 {
				continue
			}
			if bar == nil {
				bar = progress.AddBar(snap.BytesTotal,
					mpb.PrependDecorators(
						decor.Name(versionID, decor.WC{W: 20, C: decor.DidentRight}),
						decor.CountersKibiByte("% .2f / % .2f"),
					),
					mpb.AppendDecorators(
						decor.EwmaETA(decor.ET_STYLE_GO, 90),
					),
				)
			}
			bar.SetTotal(snap.BytesTotal, false)
			bar.SetCurrent(snap.BytesDone)
		case <-ctxDone:
			// keep draining; the resolver returns promptly on cancel
			ctxDone = nil
		}
	}
}
