// Command pagebuffer is an interactive shell over a single
// BufferPoolManager, useful for poking at the page lifecycle (new, fetch,
// unpin, flush, delete) by hand without writing a test.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"

	"github.com/lethanhphong/pagebuffer/internal/storage/buffer"
	util "github.com/lethanhphong/pagebuffer/internal/utils"
)

func main() {
	path := flag.String("path", "pagebuffer.dat", "backing file path")
	poolSize := flag.Int("pool-size", 16, "number of buffer pool frames")
	replacerK := flag.Int("k", 2, "LRU-K history depth")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := util.DefaultConfig(*path)
	cfg.PoolSize = *poolSize
	cfg.ReplacerK = *replacerK

	bpm, err := buffer.NewBufferPoolManager(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open buffer pool: %v\n", err)
		os.Exit(1)
	}
	defer bpm.Close()

	repl(bpm)
}

func repl(bpm *buffer.BufferPoolManager) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("pagebuffer shell. Type 'help' for commands, 'exit' to quit.")
	for {
		input, err := line.Prompt("pagebuffer> ")
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !dispatch(bpm, input) {
			return
		}
	}
}

func dispatch(bpm *buffer.BufferPoolManager, input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit":
		return false
	case "help":
		printHelp()
	case "new":
		cmdNew(bpm)
	case "fetch":
		cmdFetch(bpm, args)
	case "unpin":
		cmdUnpin(bpm, args)
	case "flush":
		cmdFlush(bpm, args)
	case "flushall":
		cmdFlushAll(bpm)
	case "delete":
		cmdDelete(bpm, args)
	case "stats":
		cmdStats(bpm)
	default:
		fmt.Printf("unknown command %q, try 'help'\n", cmd)
	}
	return true
}

func printHelp() {
	fmt.Println(`commands:
  new                 allocate and pin a new page, printing its id
  fetch <id>          pin an existing page, printing its first bytes
  unpin <id> [dirty]  unpin a page, optionally marking it dirty
  flush <id>          flush a single page to disk
  flushall            flush every resident page
  delete <id>         delete a page (must be unpinned)
  stats               print pool occupancy
  exit                quit the shell`)
}

func cmdNew(bpm *buffer.BufferPoolManager) {
	p, err := bpm.NewPage()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("new page id=%d\n", int64(p.Header.PageID))
}

func cmdFetch(bpm *buffer.BufferPoolManager, args []string) {
	id, err := parsePageID(args)
	if err != nil {
		fmt.Println(err)
		return
	}
	p, err := bpm.FetchPage(id)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("page %d: %q\n", int64(id), strings.TrimRight(string(p.Data[:32]), "\x00"))
}

func cmdUnpin(bpm *buffer.BufferPoolManager, args []string) {
	id, err := parsePageID(args)
	if err != nil {
		fmt.Println(err)
		return
	}
	dirty := len(args) > 1 && args[1] == "dirty"
	if err := bpm.UnpinPage(id, dirty); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("unpinned %d (dirty=%v)\n", int64(id), dirty)
}

func cmdFlush(bpm *buffer.BufferPoolManager, args []string) {
	id, err := parsePageID(args)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := bpm.FlushPage(id); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("flushed %d\n", int64(id))
}

func cmdFlushAll(bpm *buffer.BufferPoolManager) {
	if err := bpm.FlushAllPages(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("flushed all")
}

func cmdDelete(bpm *buffer.BufferPoolManager, args []string) {
	id, err := parsePageID(args)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := bpm.DeletePage(id); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("deleted %d\n", int64(id))
}

func cmdStats(bpm *buffer.BufferPoolManager) {
	fmt.Printf("instance:  %s\n", bpm.InstanceID())
	fmt.Printf("pool size: %d frames\n", bpm.PoolSize())
	fmt.Printf("disk size: %s\n", humanize.Bytes(uint64(bpm.DiskSize())))
}

func parsePageID(args []string) (util.PageID, error) {
	if len(args) < 1 {
		return util.InvalidPageID, fmt.Errorf("usage: <command> <page-id>")
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return util.InvalidPageID, fmt.Errorf("invalid page id %q: %w", args[0], err)
	}
	return util.PageID(n), nil
}
