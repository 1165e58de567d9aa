// Command streamscribe-client streams a 16-bit PCM WAV file to a streamscribe
// server and prints the transcript as it arrives.
//
//	streamscribe-client -addr ws://localhost:8080 recording.wav
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/streamscribe/internal/server"
	"github.com/MrWong99/streamscribe/pkg/audio"
)

// defaultChunkBytes is the size of one audio frame sent to the server.
const defaultChunkBytes = 113644

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "ws://localhost:8080", "server base URL")
	sessionID := flag.String("session", "", "session id (generated by the server when empty)")
	prompt := flag.String("prompt", "", "initial prompt passed to the backend")
	partials := flag.Bool("partials", false, "print tentative partial transcripts")
	chunk := flag.Int("chunk", defaultChunkBytes, "bytes per audio frame")
	realtime := flag.Bool("realtime", false, "pace frames at the audio's playback speed")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: streamscribe-client [flags] file.wav")
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		logger.Error("open audio", "err", err)
		return 1
	}
	wav, err := audio.DecodeWAV(f)
	f.Close()
	if err != nil {
		logger.Error("decode audio", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	u, err := streamURL(*addr, wav.Format, *sessionID, *prompt, *partials)
	if err != nil {
		logger.Error("build url", "err", err)
		return 1
	}
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		logger.Error("dial", "url", u, "err", err)
		return 1
	}
	defer conn.CloseNow()
	conn.SetReadLimit(-1)

	var pace time.Duration
	if *realtime {
		pace = frameDuration(*chunk, wav.Format)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sendAudio(gctx, conn, wav.PCM, *chunk, pace) })
	g.Go(func() error { return printMessages(gctx, conn, os.Stdout) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stream failed", "err", err)
		return 1
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return 0
}

// streamURL builds the stream endpoint URL for a WAV of format f.
func streamURL(base string, f audio.Format, sessionID, prompt string, partials bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/v1/stream"
	q := url.Values{}
	q.Set("encoding", string(audio.EncodingPCM16))
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	q.Set("channels", strconv.Itoa(f.Channels))
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	if prompt != "" {
		q.Set("initial_prompt", prompt)
	}
	if partials {
		q.Set("partials", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// frameDuration is the playback time of n bytes of 16-bit PCM in format f.
func frameDuration(n int, f audio.Format) time.Duration {
	bytesPerSecond := f.SampleRate * f.Channels * 2
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(bytesPerSecond) * float64(time.Second))
}

// sendAudio writes pcm in frames of chunk bytes, keeping frames aligned to
// whole samples, then sends the end message.
func sendAudio(ctx context.Context, conn *websocket.Conn, pcm []byte, chunk int, pace time.Duration) error {
	chunk -= chunk % 2
	if chunk <= 0 {
		chunk = defaultChunkBytes
	}
	for off := 0; off < len(pcm); off += chunk {
		end := min(off+chunk, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
		if pace > 0 {
			select {
			case <-time.After(pace):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := wsjson.Write(ctx, conn, server.Message{Type: server.TypeEnd}); err != nil {
		return fmt.Errorf("send end: %w", err)
	}
	return nil
}

// printMessages prints every server message until done.
func printMessages(ctx context.Context, conn *websocket.Conn, w io.Writer) error {
	for {
		var msg server.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if line := formatMessage(msg); line != "" {
			fmt.Fprintln(w, line)
		}
		if msg.Type == server.TypeDone {
			return nil
		}
	}
}

func formatMessage(msg server.Message) string {
	span := ""
	if msg.Start != nil && msg.End != nil {
		span = fmt.Sprintf("[%7.2f -> %7.2f] ", *msg.Start, *msg.End)
	}
	switch msg.Type {
	case server.TypeTranscript:
		return span + msg.Text
	case server.TypePartial:
		return span + "~ " + msg.Text
	case server.TypeRemainder:
		return span + msg.Text + " (unconfirmed)"
	case server.TypeError:
		return "error: " + msg.Error
	case server.TypeDone:
		return "-- done (session " + msg.SessionID + ")"
	}
	return ""
}
