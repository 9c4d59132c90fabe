package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bft-labs/satlink/internal/decoder"
	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/scheduler"
	"github.com/bft-labs/satlink/pkg/satlink"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func parseLinkFlag(s string) (satlink.Link, error) {
	if s == "" {
		return "", nil
	}
	return domain.ParseLink(s)
}

func (c *cli) decodeCommand() *cobra.Command {
	var satellite string
	cmd := &cobra.Command{
		Use:   "decode [flags] <hex-payload>...",
		Short: "Decode frames against the schema directory without touching any store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			registry, err := decoder.LoadRegistry(c.cfg.SchemaDir)
			if err != nil {
				return fmt.Errorf("load schemas: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, arg := range args {
				if err := decodeOne(out, registry, satellite, arg); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&satellite, "satellite", "", "schema to decode with (identified from the payload when empty)")
	return cmd
}

func decodeOne(out io.Writer, registry *decoder.Registry, satellite, payload string) error {
	raw, err := hex.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return fmt.Errorf("payload %q is not hex: %w", payload, err)
	}
	if satellite == "" {
		if satellite, err = registry.Identify(raw); err != nil {
			return err
		}
	}
	frame, err := registry.Decode(satellite, raw)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s (%d bytes)\n", frame.Satellite, frame.FrameKind, len(raw))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tVALUE\tUNIT\tSTATUS")
	for _, f := range frame.Fields {
		fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", f.Name, f.Value, f.Unit, f.Status)
	}
	return tw.Flush()
}

func (c *cli) submitCommand() *cobra.Command {
	var (
		file string
		sub  satlink.Submission
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Store one frame as pending, from a JSON file or flags",
		Example: strings.TrimSpace(`
  satlink submit --file frame.json
  satlink submit --link downlink --frame 0a0b0c0d --username station-7 --satellite testsat`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(b, &sub); err != nil {
					return fmt.Errorf("%w: %s: %v", satlink.ErrInvalidSubmission, file, err)
				}
			}
			if sub.Timestamp == "" {
				sub.Timestamp = time.Now().UTC().Format(time.RFC3339)
			}

			svc, err := c.newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			frame, err := svc.Submit(cmd.Context(), sub)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %s (%s %s at %s)\n",
				frame.ID, satelliteName(frame.Satellite), frame.Link, frame.Timestamp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON submission file")
	cmd.Flags().StringVar(&sub.Link, "link", "", "uplink or downlink")
	cmd.Flags().StringVar(&sub.Timestamp, "timestamp", "", "reception time, RFC3339 (default: now)")
	cmd.Flags().StringVar(&sub.Frame, "frame", "", "frame payload as hex")
	cmd.Flags().StringVar(&sub.Satellite, "satellite", "", "satellite, if known")
	cmd.Flags().StringVar(&sub.Username, "username", "", "submitting station")
	cmd.MarkFlagsMutuallyExclusive("file", "frame")
	return cmd
}

func (c *cli) reprocessCommand() *cobra.Command {
	var (
		satellite string
		link      string
		requeue   bool
	)
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Decode quarantined frames again",
		Long: strings.TrimSpace(`
Decode quarantined frames again, typically after fixing a schema. Frames that
now decode are stored and finalized as valid; the rest stay quarantined.

With --requeue the quarantined frame table rows are returned to the pending
set and drained by a buffer_processing run instead.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLinkFlag(link)
			if err != nil {
				return err
			}
			svc, err := c.newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := signalContext()
			defer cancel()

			out := cmd.OutOrStdout()
			if requeue {
				n, err := svc.Requeue(ctx, satellite, l)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "requeued %s frames\n", humanize.Comma(int64(n)))
				target := satellite
				if target == "" {
					target = satlink.AllSatellites
				}
				return svc.RunJob(ctx, target, satlink.KindBufferProcessing, l)
			}

			res, err := svc.Reprocess(ctx, satellite, l)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "reprocessed: %s valid, %s still undecodable, %s unexpected, %s transient\n",
				humanize.Comma(int64(res.Valid)), humanize.Comma(int64(res.DecodeError)),
				humanize.Comma(int64(res.Unexpected)), humanize.Comma(int64(res.Transient)))
			return nil
		},
	}
	cmd.Flags().StringVar(&satellite, "satellite", "", "limit to one satellite (default: all)")
	cmd.Flags().StringVar(&link, "link", "", "limit to uplink or downlink")
	cmd.Flags().BoolVar(&requeue, "requeue", false, "move frames back to pending instead of decoding in place")
	return cmd
}

func (c *cli) jobCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job <satellite> <kind> [link]",
		Short: "Run one job to completion in the foreground",
		Long: strings.TrimSpace(`
Run one job to completion in the foreground. kind is one of scraper,
buffer_processing or raw_bucket_processing; satellite may be "all" for
buffer_processing.`),
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := scheduler.ParseKind(args[1])
			if err != nil {
				return err
			}
			var l satlink.Link
			if len(args) == 3 {
				if l, err = domain.ParseLink(args[2]); err != nil {
					return err
				}
			}
			svc, err := c.newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := signalContext()
			defer cancel()

			start := time.Now()
			if err := svc.RunJob(ctx, args[0], kind, l); err != nil {
				return err
			}
			c.log.Info().Str("kind", string(kind)).Str("satellite", args[0]).Dur("took", time.Since(start)).Msg("job finished")
			return nil
		},
	}
	return cmd
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show frame counts, tracked time ranges and loaded schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			counts, err := svc.Counts(ctx)
			if err != nil {
				return err
			}
			ranges, err := svc.Ranges(ctx)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), svc.Satellites(), counts, ranges)
		},
	}
}

func printStatus(out io.Writer, satellites []string, counts satlink.FrameCounts, ranges []satlink.StoredRange) error {
	fmt.Fprintf(out, "satellites: %s\n", strings.Join(satellites, ", "))
	fmt.Fprintf(out, "frames: %s pending, %s valid, %s quarantined\n",
		humanize.Comma(int64(counts.Pending)), humanize.Comma(int64(counts.Valid)), humanize.Comma(int64(counts.Quarantined)))

	if len(ranges) == 0 {
		fmt.Fprintln(out, "no tracked ranges")
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Satellite != ranges[j].Satellite {
			return ranges[i].Satellite < ranges[j].Satellite
		}
		if ranges[i].Link != ranges[j].Link {
			return ranges[i].Link < ranges[j].Link
		}
		return ranges[i].Writer < ranges[j].Writer
	})

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SATELLITE\tLINK\tWRITER\tSTART\tEND\tSPAN")
	for _, r := range ranges {
		writer := r.Writer
		if writer == "" {
			writer = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			satelliteName(r.Satellite), r.Link, writer,
			humanize.Time(r.Start), humanize.Time(r.End), strings.TrimSpace(humanize.RelTime(r.Start, r.End, "", "")))
	}
	return tw.Flush()
}

func satelliteName(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
