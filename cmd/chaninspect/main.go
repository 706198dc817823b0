// Command chaninspect prints the channel file of a stopped node's store.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"

	"github.com/radio-control/meshchan/internal/channels"
	"github.com/radio-control/meshchan/internal/lora"
	"github.com/radio-control/meshchan/internal/store"
)

// readOnly keeps the inspector from writing defaults back when the file is unusable.
type readOnly struct {
	*store.BadgerStore
}

func (readOnly) Save(context.Context, channels.File) error { return nil }

func main() {
	path := flag.String("path", "", "path to the channel store directory")
	region := flag.String("region", "UNSET", "region used to synthesize names and hashes")
	preset := flag.String("preset", "LONG_FAST", "modem preset used to synthesize names and hashes")
	custom := flag.Bool("custom", false, "node runs custom modem settings rather than a preset")
	showRaw := flag.Bool("raw", false, "hex dump the stored bytes")
	showKeys := flag.Bool("keys", false, "list every key in the store")
	flag.Parse()

	if *path == "" {
		log.Fatal("-path is required")
	}

	r, err := lora.ParseRegion(*region)
	if err != nil {
		log.Fatalf("invalid -region: %v", err)
	}
	p, err := lora.ParsePreset(*preset)
	if err != nil {
		log.Fatalf("invalid -preset: %v", err)
	}
	params := lora.Params{Region: r, Preset: p, UsePreset: !*custom}

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	st, err := store.Open(*path, quiet)
	if err != nil {
		log.Fatalf("failed to open store at %s: %v", *path, err)
	}
	defer st.Close()

	ctx := context.Background()
	fmt.Printf("Store path: %s\n", st.Path())
	if u, err := store.DiskUsage(st.Path()); err == nil {
		fmt.Printf("Disk: %.2f GB free of %.2f GB (%.1f%% used)\n", u.FreeGB, u.TotalGB, u.UsedPercent)
	}

	if *showKeys {
		keys, err := st.Keys()
		if err != nil {
			log.Fatalf("failed to list keys: %v", err)
		}
		fmt.Printf("Keys: %d\n", len(keys))
		for _, k := range keys {
			fmt.Printf("  %s\n", k)
		}
	}

	if *showRaw {
		raw, err := st.Raw()
		if err != nil {
			fmt.Printf("Raw: unavailable (%v)\n", err)
		} else {
			fmt.Printf("Raw (%d bytes):\n%s", len(raw), hex.Dump(raw))
		}
	}

	f, err := st.Load(ctx)
	if errors.Is(err, store.ErrNoValidFile) {
		fmt.Printf("No usable channel file (%v); the node boots with defaults.\n", err)
		return
	}
	if err != nil {
		log.Fatalf("failed to load channel file: %v", err)
	}
	fmt.Printf("File version: %d, %d channels stored\n", f.Version, len(f.Channels))

	table := channels.NewTable(params, channels.WithPersister(readOnly{st}), channels.WithLogger(quiet))
	if err := table.Load(ctx); err != nil {
		log.Fatalf("failed to apply channel file: %v", err)
	}
	printTable(os.Stdout, table)
}

func printTable(out io.Writer, table *channels.Table) {
	params := table.Params()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tROLE\tNAME\tHASH\tKEY\tSLOT\tMHZ\tUPLINK\tDOWNLINK")
	for _, ch := range table.Channels() {
		key := "none"
		switch n := len(ch.Settings.PSK); {
		case channels.IsDefaultChannel(ch):
			key = "default"
		case n == 1 && ch.Settings.PSK[0] == 0:
			key = "none"
		case n == 1:
			key = fmt.Sprintf("default+%d", ch.Settings.PSK[0]-1)
		case n > 1:
			key = fmt.Sprintf("AES-%d", n*8)
		}
		mhz := lora.Frequency(params.Region, params.Preset, ch.Settings.ChannelNum)
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%.3f\t%t\t%t\n",
			ch.Index, ch.Role, table.GetName(ch.Index), table.Hash(ch.Index), key,
			ch.Settings.ChannelNum, mhz, ch.Settings.UplinkEnabled, ch.Settings.DownlinkEnabled)
	}
	w.Flush()

	fmt.Fprintf(out, "Primary: %d  MQTT: %t  Public default key in use: %t\n",
		table.PrimaryIndex(), table.AnyMqttEnabled(), table.HasDefaultChannel())
}
