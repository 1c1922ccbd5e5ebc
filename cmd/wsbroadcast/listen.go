package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/livecaption/wsbroadcast/internal/errors"
)

func listenCmd() *cobra.Command {
	var (
		host  string
		port  int
		path  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print messages broadcast on a port",
		Long: `Connect to a broadcast server as a WebSocket client and print every
text frame it receives, one per line.

Examples:
  wsbroadcast listen --port 9001
  wsbroadcast listen --port 9001 --path /captions --count 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port < 1 || port > 65535 {
				return errors.New("E301").WithDetail(fmt.Sprintf("--port %d is outside 1-65535", port))
			}
			u := url.URL{
				Scheme: "ws",
				Host:   net.JoinHostPort(host, strconv.Itoa(port)),
				Path:   path,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return listen(ctx, u.String(), limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&host, "host", "H", "127.0.0.1", "Server host")
	cmd.Flags().IntVarP(&port, "port", "p", 9001, "Server port")
	cmd.Flags().StringVar(&path, "path", "/", "Request path (selects the path topic)")
	cmd.Flags().IntVarP(&limit, "count", "n", 0, "Exit after this many messages (0 for no limit)")

	return cmd
}

// listen prints text frames from target to w until ctx is done, the server
// closes the connection, or limit frames were printed.
func listen(ctx context.Context, target string, limit int, w io.Writer) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return errors.New("E302").Wrap(err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for n := 0; limit <= 0 || n < limit; n++ {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *websocket.CloseError
			if stderrors.As(err, &ce) {
				fmt.Fprintf(w, "# closed: %d %s\n", ce.Code, ce.Text)
				return nil
			}
			return errors.New("E302").Wrap(err)
		}
		if typ != websocket.TextMessage {
			continue
		}
		fmt.Fprintln(w, string(msg))
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	return nil
}
