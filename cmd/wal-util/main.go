package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/INLOpen/nexuslog/checkpoint"
	"github.com/INLOpen/nexuslog/config"
	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/integrity"
	"github.com/INLOpen/nexuslog/wal"
)

func main() {
	baseDir := flag.String("base-dir", "", "The base directory of the write-ahead log")
	configPath := flag.String("config", "", "Read the WAL directory and tuning options from a configuration file instead of -base-dir")
	verify := flag.Bool("verify", false, "Verify checkpointed segment checksums against the files on disk")
	dump := flag.String("dump", "", "Print every record of the named segment file")
	replay := flag.Bool("replay", false, "Open the WAL and print every operation recovered past the newest checkpoint")
	flag.Parse()

	walCfg := config.WALConfig{Dir: *baseDir}
	if *configPath != "" {
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		walCfg = cfg.WAL
	}
	if walCfg.Dir == "" {
		fmt.Fprintln(os.Stderr, "Error: either -base-dir or -config is required.")
		flag.Usage()
		os.Exit(1)
	}

	segmentDir := filepath.Join(walCfg.Dir, core.SegmentDirName)
	checkpointDir := filepath.Join(walCfg.Dir, core.CheckpointDirName)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if *dump != "" {
		if err := dumpSegment(filepath.Join(segmentDir, *dump)); err != nil {
			fmt.Fprintf(os.Stderr, "Error dumping segment: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *replay {
		if err := replayOperations(walCfg, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error replaying WAL: %v\n", err)
			os.Exit(1)
		}
		return
	}

	checkpoints, err := checkpoint.NewManager(checkpointDir, logger).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing checkpoints: %v\n", err)
		os.Exit(1)
	}

	if err := printSegments(segmentDir, checkpoints, *verify); err != nil {
		fmt.Fprintf(os.Stderr, "Error listing segments: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
	printCheckpoints(checkpoints)
}

// replayOperations opens the WAL with the configured tuning options and
// prints every operation payload recovery would hand back to an embedding
// subsystem, one JSON value per line.
func replayOperations(walCfg config.WALConfig, logger *slog.Logger) error {
	opts, err := walCfg.WALOptions(logger)
	if err != nil {
		return err
	}
	w, err := wal.Open(opts)
	if err != nil {
		return err
	}
	defer w.Close()

	operations, err := w.Recover(context.Background())
	if err != nil {
		return err
	}
	for _, op := range operations {
		fmt.Printf("%s\n", op)
	}

	stats := w.Stats()
	fmt.Fprintf(os.Stderr, "Recovered %d operation(s), %d corruption detection(s).\n",
		len(operations), stats.CorruptionDetections)
	return nil
}

func printSegments(segmentDir string, checkpoints []core.Checkpoint, verify bool) error {
	entries, err := os.ReadDir(segmentDir)
	if err != nil {
		return err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, err := core.ParseSegmentFileName(entry.Name()); err == nil {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Println("No segments found.")
		return nil
	}

	checksumByName := make(map[string]string, len(checkpoints))
	for _, cp := range checkpoints {
		checksumByName[filepath.Base(cp.FilePath)] = cp.Checksum
	}

	// Print results in a table
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	if verify {
		fmt.Fprintln(w, "SEGMENT\tCREATED AT\tSTART SEQ\tSIZE (KB)\tCHECKSUM")
		fmt.Fprintln(w, "-------\t----------\t---------\t---------\t--------")
	} else {
		fmt.Fprintln(w, "SEGMENT\tCREATED AT\tSTART SEQ\tSIZE (KB)")
		fmt.Fprintln(w, "-------\t----------\t---------\t---------")
	}

	for _, name := range names {
		epochMillis, startSeq, _ := core.ParseSegmentFileName(name)
		path := filepath.Join(segmentDir, name)

		var sizeKB float64
		if info, err := os.Stat(path); err == nil {
			sizeKB = float64(info.Size()) / 1024
		}
		createdAt := time.UnixMilli(epochMillis).Format("2006-01-02 15:04:05 MST")

		if verify {
			status := "-"
			if want, ok := checksumByName[name]; ok {
				got, err := integrity.FileChecksum(path)
				switch {
				case err != nil:
					status = fmt.Sprintf("ERROR (%v)", err)
				case got == want:
					status = "OK"
				default:
					status = "MISMATCH"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\n", name, createdAt, startSeq, sizeKB, status)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", name, createdAt, startSeq, sizeKB)
		}
	}
	return w.Flush()
}

func printCheckpoints(checkpoints []core.Checkpoint) {
	if len(checkpoints) == 0 {
		fmt.Println("No checkpoints found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CHECKPOINT ID\tCREATED AT\tSEQ\tOPERATIONS\tSEGMENT")
	fmt.Fprintln(w, "-------------\t----------\t---\t----------\t-------")

	for _, cp := range checkpoints {
		createdAt := time.Unix(0, int64(cp.Timestamp*float64(time.Second))).Format("2006-01-02 15:04:05 MST")
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			cp.CheckpointID,
			createdAt,
			cp.SequenceNumber,
			cp.OperationsCount,
			filepath.Base(cp.FilePath),
		)
	}
	w.Flush()
}

func dumpSegment(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec core.Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.SequenceNumber == 0 {
			fmt.Printf("line %d: CORRUPT: %s\n", lineNum, line)
			continue
		}
		fmt.Printf("seq=%d ts=%.6f op=%s\n", rec.SequenceNumber, rec.Timestamp, rec.Operation)
	}
	return scanner.Err()
}
