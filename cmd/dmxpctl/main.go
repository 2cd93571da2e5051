// Command dmxpctl is a small operational tool for inspecting and
// exercising a dmxp region on disk. It is not a cross-language FFI demo:
// every subcommand calls only the public dmxp package API, the same way
// any other Go program embedding the library would.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/neerajchowdary889/dmxp-mpmc"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "inspect":
		err = runInspect(os.Args[2:])
	case "create":
		err = runCreate(os.Args[2:])
	case "smoke":
		err = runSmoke(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "dmxpctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  dmxpctl inspect <path>
  dmxpctl create <path> <channel-id> <capacity>
  dmxpctl smoke <path> <channel-id>`)
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("inspect requires <path>")
	}
	path := fs.Arg(0)
	if _, err := os.Stat(path); err != nil {
		return err
	}

	r, err := dmxp.OpenOrCreate(path, 0)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Printf("region %s: size=%d bytes\n", path, r.Size())
	found := 0
	for id := uint32(0); id < dmxp.MaxChannels; id++ {
		ch, err := r.OpenChannel(id)
		if err != nil {
			continue
		}
		found++
		s := ch.Stats()
		fmt.Printf("  channel %d: capacity=%d head=%d tail=%d len=%d full=%t\n",
			s.ID, s.Capacity, s.Head, s.Tail, s.Len, s.Full)
	}
	if found == 0 {
		fmt.Println("  (no channels created)")
	}
	return nil
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 3 {
		return errors.New("create requires <path> <channel-id> <capacity>")
	}
	path := fs.Arg(0)
	id, err := strconv.ParseUint(fs.Arg(1), 10, 32)
	if err != nil {
		return fmt.Errorf("channel-id: %w", err)
	}
	capacity, err := strconv.ParseUint(fs.Arg(2), 10, 64)
	if err != nil {
		return fmt.Errorf("capacity: %w", err)
	}

	r, err := dmxp.OpenOrCreate(path, dmxp.DefaultSize)
	if err != nil {
		return err
	}
	defer r.Close()

	ch, err := r.CreateChannel(uint32(id), capacity)
	if err != nil {
		return err
	}
	fmt.Printf("channel %d ready: capacity=%d\n", ch.ID(), ch.Capacity())
	return nil
}

func runSmoke(args []string) error {
	fs := flag.NewFlagSet("smoke", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return errors.New("smoke requires <path> <channel-id>")
	}
	path := fs.Arg(0)
	id, err := strconv.ParseUint(fs.Arg(1), 10, 32)
	if err != nil {
		return fmt.Errorf("channel-id: %w", err)
	}

	r, err := dmxp.OpenOrCreate(path, dmxp.DefaultSize)
	if err != nil {
		return err
	}
	defer r.Close()

	ch, err := r.CreateChannel(uint32(id), 1024)
	if err != nil {
		return err
	}

	payload := []byte("dmxpctl-smoke")
	start := time.Now()
	if err := ch.Send(dmxp.MessageMeta{MessageType: 0}, payload); err != nil {
		return err
	}

	buf := make([]byte, dmxp.PayloadCap)
	meta, n, err := ch.ReceiveWithTimeout(buf, 100*time.Millisecond)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("round trip ok: %d bytes, message_id=%d, elapsed=%s\n", n, meta.MessageID, elapsed)
	return nil
}
