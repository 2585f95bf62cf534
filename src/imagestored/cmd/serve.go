package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/q-controller/imagestore/src/imagestored/cmd/utils"
	"github.com/q-controller/imagestore/src/pkg/images"
	"github.com/q-controller/imagestore/src/pkg/images/picker"
	"github.com/q-controller/imagestore/src/pkg/metrics"
	fileutils "github.com/q-controller/imagestore/src/pkg/utils"
	"github.com/spf13/cobra"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

func createGatewayMux(svc images.ImageService) (*runtime.ServeMux, error) {
	handler, handlerErr := images.CreateHandler(svc)
	if handlerErr != nil {
		return nil, handlerErr
	}

	mux := runtime.NewServeMux()
	if registerErr := handler.Register(mux, utils.PathPrefix); registerErr != nil {
		return nil, registerErr
	}

	specs, specsErr := utils.GenerateOpenAPISpecs()
	if specsErr != nil {
		return nil, specsErr
	}
	if err := mux.HandlePath(http.MethodGet, "/openapi.yaml", func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		w.Header().Set("Content-Type", "application/yaml")
		if _, writeErr := w.Write([]byte(specs)); writeErr != nil {
			slog.Warn("Failed to write OpenAPI spec", "error", writeErr)
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to register OpenAPI endpoint: %w", err)
	}
	return mux, nil
}

func createRootMux(gw http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/swagger/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/", gw)
	return mux
}

// watchInbox adds every capture that lands in the inbox until ctx is done.
func watchInbox(ctx context.Context, svc images.ImageService, p picker.Picker) error {
	req := picker.DefaultRequest(picker.SourceCamera)
	for {
		res, pickErr := p.Pick(ctx, req)
		if ctx.Err() != nil {
			return nil
		}
		if pickErr != nil {
			return pickErr
		}
		if res.Cancelled {
			continue
		}

		record, addErr := svc.Add(ctx, res.URI)
		if addErr != nil {
			slog.Warn("Failed to add capture", "source", res.URI, "error", addErr)
			continue
		}
		clearInbox(res.URI, record.URI)
		slog.Info("Captured image", "uri", record.URI)
	}
}

// clearInbox deletes the captured source once the stored copy holds all of
// its bytes.
func clearInbox(sourceURI, storedURI string) {
	source, sourceErr := fileutils.PathFromURI(sourceURI)
	stored, storedErr := fileutils.PathFromURI(storedURI)
	if sourceErr != nil || storedErr != nil {
		return
	}

	sourceInfo, sourceStatErr := os.Stat(source)
	storedInfo, storedStatErr := os.Stat(stored)
	if sourceStatErr != nil || storedStatErr != nil || sourceInfo.Size() != storedInfo.Size() {
		slog.Warn("Keeping capture, stored copy differs", "file", source, "stored", stored)
		return
	}
	if removeErr := os.Remove(source); removeErr != nil {
		slog.Warn("Failed to clear inbox", "file", source, "error", removeErr)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP and gRPC health services",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		watch, watchErr := cmd.Flags().GetBool("watch-inbox")
		if watchErr != nil {
			return fmt.Errorf("failed to get watch-inbox: %w", watchErr)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gw, gwErr := createGatewayMux(a.svc)
		if gwErr != nil {
			return gwErr
		}

		lis, lisErr := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if lisErr != nil {
			return fmt.Errorf("failed to listen: %w", lisErr)
		}

		hs := health.NewServer()
		grpcServer := grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, hs)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           createRootMux(gw),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			slog.Info("gRPC health server listening", "address", lis.Addr().String())
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			slog.Info("HTTP server listening", "address", httpServer.Addr, "images", cfg.ImagesPath(), "upload", cfg.UploadEnabled())
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		if watch {
			p := &picker.DirPicker{Inbox: cfg.InboxPath(), Timeout: cfg.CaptureTimeout, Quiet: cfg.CaptureQuiet}
			g.Go(func() error {
				slog.Info("Watching inbox", "directory", cfg.InboxPath())
				return watchInbox(gctx, a.svc, p)
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("Shutting down")
			hs.Shutdown()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			shutdownErr := httpServer.Shutdown(shutdownCtx)
			grpcServer.GracefulStop()
			return shutdownErr
		})

		return g.Wait()
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("watch-inbox", false, "Add captures dropped into the inbox directory")
}
