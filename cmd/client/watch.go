package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	photosync "github.com/openmined/photosync/internal/client/sync"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	var dashboardURL string
	var token string
	var untilDone bool

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow sync progress of a running dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dashboardURL == "" {
				dashboardURL = cfg.HTTP.Addr
			}
			if token == "" {
				token = cfg.HTTP.Token
			}

			wsURL, err := websocketURL(dashboardURL, token)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			conn, _, err := websocket.Dial(cmd.Context(), wsURL, nil)
			if err != nil {
				return fmt.Errorf("connect %s: %w", dashboardURL, err)
			}
			defer conn.CloseNow()

			p := newWatchPrinter(cmd.OutOrStdout())
			for {
				var ev watchEvent
				if err := wsjson.Read(cmd.Context(), conn, &ev); err != nil {
					if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
						return nil
					}
					return fmt.Errorf("dashboard connection: %w", err)
				}
				if done := p.handle(&ev); done && untilDone {
					conn.Close(websocket.StatusNormalClosure, "done")
					return nil
				}
			}
		},
	}

	watchCmd.Flags().StringVarP(&dashboardURL, "url", "u", "", "Dashboard address (default: http.addr from config)")
	watchCmd.Flags().StringVarP(&token, "token", "t", "", "Dashboard access token")
	watchCmd.Flags().BoolVar(&untilDone, "until-done", false, "Exit when the next pass ends")

	return watchCmd
}

// websocketURL accepts host:port or an http(s)/ws(s) URL.
func websocketURL(addr, token string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid dashboard address %q", addr)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid dashboard address %q", addr)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type watchEvent struct {
	Type       photosync.EventType `json:"type"`
	Message    string              `json:"message"`
	Count      int                 `json:"count"`
	Current    int                 `json:"current"`
	Total      int                 `json:"total"`
	PhotoID    string              `json:"photo_id"`
	Filename   string              `json:"filename"`
	SizeHuman  string              `json:"size_human"`
	Downloaded int                 `json:"downloaded"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
	BytesHuman string              `json:"bytes_total_human"`
	Data       *photosync.Status   `json:"data"`
}

type watchPrinter struct {
	out io.Writer
	bar progress.Model
}

func newWatchPrinter(out io.Writer) *watchPrinter {
	return &watchPrinter{
		out: out,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
	}
}

func (p *watchPrinter) prefix(current, total int) string {
	if total <= 0 {
		return ""
	}
	return p.bar.ViewAs(float64(current)/float64(total)) + " "
}

// handle prints one event and reports whether it ended a pass.
func (p *watchPrinter) handle(ev *watchEvent) bool {
	switch ev.Type {
	case photosync.EventHeartbeat:
	case photosync.EventStatus:
		if s := ev.Data; s != nil {
			state := "idle"
			if s.IsSyncing {
				state = fmt.Sprintf("syncing %d/%d", s.CurrentPhoto, s.TotalPhotos)
			}
			fmt.Fprintf(p.out, "%s %s\n", cyan.Render("connected:"), state)
		}
	case photosync.EventSyncStarted:
		fmt.Fprintln(p.out, cyan.Render("sync started"))
	case photosync.EventStatusUpdate:
		fmt.Fprintln(p.out, gray.Render(ev.Message))
	case photosync.EventPhotosFound:
		fmt.Fprintf(p.out, "%d new photos\n", ev.Count)
	case photosync.EventDownloading:
		fmt.Fprintf(p.out, "%s%s\n", p.prefix(ev.Current-1, ev.Total), lightGray.Render(valueOr(ev.Filename, ev.PhotoID)))
	case photosync.EventDownloaded:
		fmt.Fprintf(p.out, "%s%s %s\n", p.prefix(ev.Current, ev.Total), green.Render(ev.Filename), gray.Render(ev.SizeHuman))
	case photosync.EventSkipped:
		fmt.Fprintf(p.out, "%s%s\n", p.prefix(ev.Current, ev.Total), gray.Render("skipped "+ev.PhotoID))
	case photosync.EventDownloadFailed:
		fmt.Fprintf(p.out, "%s%s\n", p.prefix(ev.Current, ev.Total), red.Render("failed "+ev.PhotoID))
	case photosync.EventSyncComplete:
		fmt.Fprintf(p.out, "%s %d downloaded, %d skipped, %d failed, %s\n",
			green.Render("sync complete:"), ev.Downloaded, ev.Skipped, ev.Failed, ev.BytesHuman)
		return true
	case photosync.EventSyncCancelled:
		fmt.Fprintln(p.out, red.Render(valueOr(ev.Message, "sync cancelled")))
		return true
	case photosync.EventSyncError:
		fmt.Fprintf(p.out, "%s %s\n", red.Render("sync error:"), ev.Message)
		return true
	default:
		fmt.Fprintf(p.out, "%s %s\n", ev.Type, ev.Message)
	}
	return false
}
