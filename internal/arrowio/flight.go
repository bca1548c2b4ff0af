package arrowio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-ssm/internal/logger"
	"github.com/23skdu/longbow-ssm/internal/metrics"
)

var ErrNotConnected = errors.New("client not connected, call Connect() first")

// Forwarder is the model a FlightServer serves.
type Forwarder interface {
	Forward(x *mat.Dense) (*mat.Dense, error)
}

// FlightServer answers DoExchange streams: every record batch received is
// one sequence and is answered with a record batch holding its forward
// output, in order.
type FlightServer struct {
	flight.BaseFlightServer

	model  Forwarder
	mem    memory.Allocator
	server flight.Server
}

func NewFlightServer(model Forwarder) *FlightServer {
	return &FlightServer{model: model, mem: memory.DefaultAllocator}
}

// Init binds addr ("host:port", port 0 picks a free one) and registers the
// service.
func (s *FlightServer) Init(addr string) error {
	s.server = flight.NewServerWithMiddleware(nil)
	if err := s.server.Init(addr); err != nil {
		return fmt.Errorf("flight listen %s: %w", addr, err)
	}
	s.server.RegisterFlightService(s)
	return nil
}

func (s *FlightServer) Addr() net.Addr {
	return s.server.Addr()
}

// Serve blocks until Shutdown.
func (s *FlightServer) Serve() error {
	logger.Log.Info("Flight server listening", "addr", s.Addr().String())
	return s.server.Serve()
}

func (s *FlightServer) Shutdown() {
	if s.server != nil {
		s.server.Shutdown()
	}
}

func (s *FlightServer) DoExchange(stream flight.FlightService_DoExchangeServer) (err error) {
	start := time.Now()
	log := logger.Log.With("request_id", uuid.NewString(), "method", "DoExchange")
	served := 0
	defer func() {
		metrics.RecordFlightRequest("DoExchange", served, err)
		if err != nil {
			log.Warn("Exchange failed", "err", err, "sequences", served)
			return
		}
		log.Debug("Exchange complete", "sequences", served, "duration", time.Since(start))
	}()

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.mem))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return status.Errorf(codes.InvalidArgument, "read schema: %v", err)
	}
	defer reader.Release()

	var writer *flight.Writer
	defer func() {
		if writer != nil {
			if cerr := writer.Close(); cerr != nil && err == nil {
				err = status.Errorf(codes.Internal, "close writer: %v", cerr)
			}
		}
	}()

	for reader.Next() {
		x, err := FromRecord(reader.Record())
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "sequence %d: %v", served, err)
		}
		y, err := s.model.Forward(x)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "sequence %d: %v", served, err)
		}
		rec := ToRecord(s.mem, y)
		if writer == nil {
			writer = flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(s.mem))
		}
		err = writer.Write(rec)
		rec.Release()
		if err != nil {
			return status.Errorf(codes.Internal, "write sequence %d: %v", served, err)
		}
		served++
	}
	if err := reader.Err(); err != nil {
		return status.Errorf(codes.InvalidArgument, "read stream: %v", err)
	}
	return nil
}

// FlightClient sends sequences to a FlightServer.
type FlightClient struct {
	addr   string
	client flight.Client
	mem    memory.Allocator
}

func NewFlightClient(addr string) *FlightClient {
	return &FlightClient{addr: addr, mem: memory.DefaultAllocator}
}

// Connect establishes connection to Flight server
func (fc *FlightClient) Connect(ctx context.Context) error {
	client, err := flight.NewClientWithMiddlewareCtx(ctx, fc.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	fc.client = client
	return nil
}

func (fc *FlightClient) Close() error {
	if fc.client == nil {
		return nil
	}
	err := fc.client.Close()
	fc.client = nil
	return err
}

// Forward streams seqs through one DoExchange call and returns the outputs
// in the same order. Sending and receiving run concurrently.
func (fc *FlightClient) Forward(ctx context.Context, seqs ...*mat.Dense) ([]*mat.Dense, error) {
	if fc.client == nil {
		return nil, ErrNotConnected
	}
	channels, err := sharedWidth(seqs)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	stream, err := fc.client.DoExchange(gctx)
	if err != nil {
		return nil, fmt.Errorf("open exchange: %w", err)
	}

	g.Go(func() error {
		writer := flight.NewRecordWriter(stream, ipc.WithSchema(Schema(channels)), ipc.WithAllocator(fc.mem))
		for _, s := range seqs {
			rec := ToRecord(fc.mem, s)
			err := writer.Write(rec)
			rec.Release()
			if err != nil {
				writer.Close()
				// the server ended the stream; its status surfaces on the read side
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("send sequence: %w", err)
			}
		}
		if err := writer.Close(); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("close writer: %w", err)
		}
		return stream.CloseSend()
	})

	results := make([]*mat.Dense, 0, len(seqs))
	g.Go(func() error {
		reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(fc.mem))
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		defer reader.Release()
		for reader.Next() {
			y, err := FromRecord(reader.Record())
			if err != nil {
				return fmt.Errorf("result %d: %w", len(results), err)
			}
			results = append(results, y)
		}
		if err := reader.Err(); err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(results) != len(seqs) {
		return nil, fmt.Errorf("%w: sent %d, received %d", errUnexpectedShape, len(seqs), len(results))
	}
	return results, nil
}
