// Command adv-decode is a manual check for advertising payloads. It splits
// a hex payload into AD structures, decodes the known fields and re-encodes
// them, reporting whether the result is byte-identical.
//
// Usage:
//
//	go run ./cmd/adv-decode [--config path] [hex ...]
//
// Without arguments it checks the advertising data and scan response built
// from the config.
package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chaz8081/gatt-peripheral/internal/adv"
	"github.com/chaz8081/gatt-peripheral/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file to build payloads from (default: built-in defaults)")
	flag.Parse()

	payloads, err := inputs(*configPath, flag.Args())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	failed := false
	for _, p := range payloads {
		if !check(p.label, p.data) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("\nDone!")
}

type payload struct {
	label string
	data  []byte
}

func inputs(configPath string, args []string) ([]payload, error) {
	if len(args) > 0 {
		var out []payload
		for i, a := range args {
			b, err := hex.DecodeString(strings.NewReplacer(" ", "", ":", "").Replace(a))
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			out = append(out, payload{label: fmt.Sprintf("payload %d", i+1), data: b})
		}
		return out, nil
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	ac, err := cfg.AdvConfig()
	if err != nil {
		return nil, err
	}
	return []payload{
		{label: "advertising data", data: ac.AdvData},
		{label: "scan response", data: ac.ScanRsp},
	}, nil
}

func check(label string, b []byte) bool {
	fmt.Printf("== %s (%d bytes): % x\n", label, len(b), b)

	structs, err := adv.Parse(b)
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return false
	}
	for _, s := range structs {
		fmt.Printf("  %-28s % x\n", adv.TypeName(s.Type), s.Data)
	}

	f, err := adv.Decode(b)
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return false
	}
	printFields(f)

	re, err := f.Encode()
	if err != nil {
		fmt.Printf("  Re-encode error: %v\n", err)
		return false
	}
	if !bytes.Equal(re, b) {
		fmt.Printf("  MISMATCH, re-encoded: % x\n", re)
		return false
	}
	fmt.Println("  Round trip: identical")
	return true
}

func printFields(f adv.Fields) {
	if f.Flags != 0 {
		fmt.Printf("  flags:        %#02x\n", f.Flags)
	}
	if f.TxPower != nil {
		fmt.Printf("  tx power:     %d dBm\n", *f.TxPower)
	}
	for _, u := range f.ServiceUUIDs {
		fmt.Printf("  service:      %s\n", u)
	}
	if f.Appearance != nil {
		fmt.Printf("  appearance:   %#04x\n", *f.Appearance)
	}
	if f.LocalName != "" {
		kind := "complete"
		if f.ShortName {
			kind = "short"
		}
		fmt.Printf("  name:         %q (%s)\n", f.LocalName, kind)
	}
	if len(f.ManufacturerData) > 0 {
		fmt.Printf("  manufacturer: % x\n", f.ManufacturerData)
	}
}
