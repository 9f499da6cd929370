// mediadrop/extract/ytdlp.go
package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"mediadrop/config"
)

// progressLine matches yt-dlp's --newline progress output,
// e.g. "[download]  42.3% of 10.00MiB at 1.00MiB/s ETA 00:05".
var progressLine = regexp.MustCompile(`^\[download\]\s+([0-9.]+)%`)

// YTDLPEngine drives the yt-dlp binary. Each extraction writes into a
// per-job scratch file under the engine's temp directory; the produced path
// is handed back for the coordinator to finalize.
type YTDLPEngine struct {
	cfg      *config.Config
	scratch  string
	extraArg []string
}

func NewYTDLPEngine(cfg *config.Config) (*YTDLPEngine, error) {
	if _, err := exec.LookPath(cfg.YTDLPBin); err != nil {
		return nil, fmt.Errorf("yt-dlp binary not found or not in PATH: %s", cfg.YTDLPBin)
	}

	scratch, err := os.MkdirTemp("", "mediadrop_scratch_")
	if err != nil {
		return nil, fmt.Errorf("could not create scratch directory: %w", err)
	}
	log.Printf("Using scratch directory: %s", scratch)

	extra, err := cfg.ExtraYTDLPArgs()
	if err != nil {
		return nil, err
	}

	return &YTDLPEngine{
		cfg:      cfg,
		scratch:  scratch,
		extraArg: extra,
	}, nil
}

// Extract runs yt-dlp for the given source. Progress callbacks are invoked
// inline while scanning the process output; the terminal result or error is
// returned once the process exits. Cancelling ctx kills the process.
func (e *YTDLPEngine) Extract(ctx context.Context, url string, kind Kind, onProgress ProgressFunc) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown extraction kind %q", kind)
	}

	if err := e.checkResources(); err != nil {
		return nil, fmt.Errorf("insufficient system resources: %w", err)
	}

	token := shortuuid.New()
	outTemplate := filepath.Join(e.scratch, token+".%(ext)s")

	args := []string{
		"--newline",
		"-o", outTemplate,
	}
	switch kind {
	case KindAudio:
		args = append(args, "-f", e.cfg.FormatAudio, "-x")
	default:
		args = append(args, "-f", e.cfg.FormatVideo)
	}
	args = append(args, e.extraArg...)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, e.cfg.YTDLPBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	log.Printf("Executing: %s %s", cmd.Path, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if m := progressLine.FindStringSubmatch(line); m != nil {
			if pct, perr := strconv.ParseFloat(m[1], 64); perr == nil {
				onProgress("downloading", pct)
			}
			continue
		}
		if strings.HasPrefix(line, "[ExtractAudio]") || strings.HasPrefix(line, "[Merger]") {
			onProgress("postprocessing", -1)
		}
	}

	if err := cmd.Wait(); err != nil {
		e.removeScratch(token)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("yt-dlp failed: %s: %w", lastLine(stderr.String()), err)
	}

	path, err := e.findOutput(token)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("produced file vanished: %w", err)
	}

	return &Result{
		Path:      path,
		Size:      info.Size(),
		MediaType: mediaTypeFor(path),
	}, nil
}

// findOutput locates the scratch file yt-dlp wrote. The extension is chosen
// by the extractor, so the token is globbed rather than predicted.
func (e *YTDLPEngine) findOutput(token string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(e.scratch, token+".*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp exited cleanly but produced no output for %s", token)
	}
	if len(matches) > 1 {
		// Postprocessing can leave intermediates behind; prefer the newest.
		log.Printf("Multiple outputs for %s, picking newest of %d", token, len(matches))
		newest := matches[0]
		var newestMod time.Time
		for _, m := range matches {
			if info, serr := os.Stat(m); serr == nil && info.ModTime().After(newestMod) {
				newest, newestMod = m, info.ModTime()
			}
		}
		return newest, nil
	}
	return matches[0], nil
}

func (e *YTDLPEngine) removeScratch(token string) {
	matches, _ := filepath.Glob(filepath.Join(e.scratch, token+".*"))
	for _, m := range matches {
		os.Remove(m)
	}
}

// checkResources verifies the host has headroom before spawning an extractor.
func (e *YTDLPEngine) checkResources() error {
	p, err := cpu.Percent(time.Second, false)
	if err != nil {
		log.Printf("Warning: could not get CPU usage: %v", err)
	} else if len(p) > 0 && p[0] > (100.0-e.cfg.ThrottleCPU) {
		return fmt.Errorf("not enough idle CPU: current usage %.2f%%, idle threshold %.2f%%", p[0], e.cfg.ThrottleCPU)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Printf("Warning: could not get memory usage: %v", err)
	} else if vm.Available < uint64(e.cfg.ThrottleFreeMem) {
		return fmt.Errorf("not enough free memory: available %d, required %d", vm.Available, e.cfg.ThrottleFreeMem)
	}

	d, err := disk.Usage(e.scratch)
	if err != nil {
		log.Printf("Warning: could not get disk usage for %s: %v", e.scratch, err)
	} else if d.Free < uint64(e.cfg.ThrottleFreeDisk) {
		return fmt.Errorf("not enough free disk space: available %d, required %d", d.Free, e.cfg.ThrottleFreeDisk)
	}
	return nil
}

func mediaTypeFor(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// lastLine pulls the final non-empty line out of captured stderr, which is
// where yt-dlp puts its "ERROR:" summary.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return "no output"
}
