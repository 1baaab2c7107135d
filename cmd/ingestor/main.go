// Command ingestor is the CLI surface of the ingestion gateway, for
// testability per spec.md §6: it binds the UDP transport receiver, filters
// and publishes frames into the shared-memory ring, and optionally
// validates frames against a schema registry and fans indicator snapshots
// out to a diagnostics WebSocket and a Unix-socket publisher. Grounded on the teacher's main.go (signal.NotifyContext,
// ordered startup logging, deferred Close), generalized from one
// hardcoded ring name into a flag/env/file configurable binary.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Charliesj0129/shijim/internal/config"
	"github.com/Charliesj0129/shijim/internal/diag"
	"github.com/Charliesj0129/shijim/internal/indicators"
	"github.com/Charliesj0129/shijim/internal/ipcpub"
	"github.com/Charliesj0129/shijim/internal/logging"
	"github.com/Charliesj0129/shijim/internal/sbe"
	"github.com/Charliesj0129/shijim/internal/shm"
	"github.com/Charliesj0129/shijim/internal/transport"
)

const (
	exitOK            = 0
	exitBindOrInit    = 2
	exitSchemaLoad    = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logging.New("ingestor")

	var (
		bind      = flag.String("bind", "", "UDP bind address host:port")
		mode      = flag.String("mode", "", "NORMAL or TESTING")
		slotSize  = flag.Uint("slot-size", 0, "ring slot size in bytes")
		slotCount = flag.Uint("slot-count", 0, "ring slot count (power of two)")
		shmName   = flag.String("shm-name", "", "shared memory region name")
		schemaPath = flag.String("schema", "", "path to the SBE schema registry JSON file")
		diagAddr  = flag.String("diag-addr", "", "optional diagnostics WebSocket listen address")
		ipcSocket = flag.String("ipc-socket", "", "optional Unix socket path for the indicator-snapshot publisher")
		configPath = flag.String("config", "", "path to a TOML config file")
		force     = flag.Bool("force", false, "recreate the shm region if it already exists")
	)
	flag.Parse()

	config.LoadDotenv("")
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Errorf("%v", err)
		return exitBindOrInit
	}
	cfg.ApplyEnv()

	if *bind != "" {
		cfg.Ingestor.Bind = *bind
	}
	if *mode != "" {
		cfg.Ingestor.Mode = config.Mode(*mode)
	}
	if *slotSize != 0 {
		cfg.Shm.SlotSize = uint32(*slotSize)
	}
	if *slotCount != 0 {
		cfg.Shm.SlotCount = uint32(*slotCount)
	}
	if *shmName != "" {
		cfg.Shm.Name = *shmName
	}
	if *schemaPath != "" {
		cfg.SchemaPath = *schemaPath
	}
	if *diagAddr != "" {
		cfg.DiagAddr = *diagAddr
	}
	if *ipcSocket != "" {
		cfg.IPCSocket = *ipcSocket
	}
	if *force {
		cfg.Shm.Force = true
	}

	var registry *sbe.Registry
	if cfg.SchemaPath != "" {
		registry, err = sbe.LoadRegistry(cfg.SchemaPath)
		if err != nil {
			log.Errorf("schema load failed: %v", err)
			return exitSchemaLoad
		}
		log.Infof("loaded %d schema template(s) from %s", registry.Len(), cfg.SchemaPath)
	}

	policy := shm.PolicyTruncate
	if cfg.Shm.OverflowPolicy == "drop" {
		policy = shm.PolicyDrop
	}

	region, err := shm.Create(cfg.Shm.Name, cfg.Shm.SlotSize, cfg.Shm.SlotCount, cfg.Shm.Force)
	if err != nil {
		log.Errorf("shm create failed: %v", err)
		return exitBindOrInit
	}
	defer region.Close()
	log.Infof("shared memory ring %q: %d slots x %d bytes", cfg.Shm.Name, cfg.Shm.SlotCount, cfg.Shm.SlotSize)

	writer, err := shm.NewWriter(region, policy)
	if err != nil {
		log.Errorf("ring writer init failed: %v", err)
		return exitBindOrInit
	}

	filter := sbe.NewFilter()

	recv, err := transport.New(cfg.Ingestor, log.With("transport"))
	if err != nil {
		log.Errorf("bind failed: %v", err)
		return exitBindOrInit
	}
	defer recv.Close()
	log.Infof("receiver bound to %s (mode=%s)", cfg.Ingestor.Bind, cfg.Ingestor.Mode)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var diagServer *diag.Server
	var ipcPublisher *ipcpub.Publisher
	if cfg.IPCSocket != "" {
		ipcPublisher = ipcpub.NewPublisher(cfg.IPCSocket, log.With("ipc"))
		defer ipcPublisher.Close()
		log.Infof("indicator snapshots streaming to %s", cfg.IPCSocket)
	}

	engine := newIndicatorEngine(cfg.Indicators)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return recv.Run(gctx, func(frame []byte) {
			if !filter.Admit(frame) {
				return
			}
			if registry != nil {
				if err := validateAgainstRegistry(registry, frame); err != nil {
					log.Warnf("rejecting frame: %v", err)
					return
				}
			}
			seq, err := writer.Publish(frame)
			if err != nil {
				return
			}
			if diagServer != nil || ipcPublisher != nil {
				publishSnapshots(diagServer, ipcPublisher, seq, frame, engine)
			}
		})
	})

	if cfg.DiagAddr != "" {
		diagServer = diag.New(log.With("diag"))
		g.Go(func() error {
			return diagServer.Run(gctx, cfg.DiagAddr)
		})
		log.Infof("diagnostics websocket listening on %s", cfg.DiagAddr)
	}

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		log.Errorf("fatal: %v", err)
		return exitBindOrInit
	}

	log.Infof("clean shutdown")
	return exitOK
}

// validateAgainstRegistry resolves the frame's (schema_id, version,
// template_id) against the loaded schema registry before it reaches the
// ring, so a collaborator-side schema change that silently drifts the
// wire format is caught at the filter boundary rather than surfacing as a
// decode error downstream.
func validateAgainstRegistry(registry *sbe.Registry, frame []byte) error {
	h, err := sbe.DecodeHeader(frame)
	if err != nil {
		return err
	}
	_, err = registry.Lookup(h.SchemaID, h.Version, h.TemplateID)
	return err
}

// indicatorEngine owns the per-process indicator state fed by every
// published frame: OFI directly from book levels, and VPIN/Hawkes fed by
// the same book updates as a proxy event stream, since this core's wire
// format carries incremental book refreshes rather than a separate trade
// feed.
type indicatorEngine struct {
	ofi    *indicators.OFI
	vpin   *indicators.VPIN
	hawkes *indicators.HawkesState
}

func newIndicatorEngine(cfg config.IndicatorConfig) *indicatorEngine {
	baseline, alpha, beta := 1.0, 0.3, 1.0
	if p, ok := cfg.Hawkes["book_update"]; ok {
		baseline, alpha, beta = p.Baseline, p.Alpha, p.Beta
	}
	return &indicatorEngine{
		ofi:    indicators.NewOFI(),
		vpin:   indicators.NewVPIN(cfg.VPINBucketVolume, cfg.VPINWindowN),
		hawkes: indicators.NewHawkesState(baseline, alpha, beta),
	}
}

// publishSnapshots decodes a best-effort preview of the published frame
// and fans the resulting indicator values out to whichever collaborators
// are configured; decode failures are swallowed since this path is
// diagnostic, not authoritative (the ring itself already holds the bytes
// of record).
func publishSnapshots(diagServer *diag.Server, ipc *ipcpub.Publisher, seq uint64, frame []byte, engine *indicatorEngine) {
	msg, err := sbe.DecodeMarketDataIncrementalRefresh(frame)
	if err != nil || len(msg.Entries) == 0 {
		return
	}

	var bid, ask indicators.BookLevel
	for _, e := range msg.Entries {
		if !e.Price.Present {
			continue
		}
		lvl := indicators.BookLevel{Price: e.Price.Value.ToFloat(), Size: float64(e.Size)}
		switch e.Type {
		case sbe.MDEntryBid:
			bid = lvl
		case sbe.MDEntryAsk:
			ask = lvl
		}
	}

	ofiVal, ofiOK := engine.ofi.Update(bid, ask)

	var vpinVal float64
	var vpinOK bool
	if bid.Price > 0 {
		vpinVal, vpinOK = engine.vpin.UpdateTrade(bid.Price, bid.Size)
	}

	hawkesVal, err := engine.hawkes.Update(float64(msg.TransactTime) / 1e9)
	if err != nil {
		// TransactTime went backwards relative to the last frame the engine
		// saw; keep the last known intensity rather than propagating a
		// decode-path error for a diagnostic-only signal.
		hawkesVal = engine.hawkes.CurrentIntensity()
	}

	if diagServer != nil {
		diagServer.Broadcast(diag.Snapshot{
			Seq:          seq,
			TransactTime: msg.TransactTime,
			BidPrice:     bid.Price,
			BidSize:      bid.Size,
			AskPrice:     ask.Price,
			AskSize:      ask.Size,
			OFI:          ofiVal,
			OFIValid:     ofiOK,
			VPIN:         vpinVal,
			VPINValid:    vpinOK,
		})
	}

	if ipc != nil {
		ipc.Publish("indicator_snapshot", ipcpub.Snapshot{
			Seq:             seq,
			TransactTime:    msg.TransactTime,
			OFI:             ofiVal,
			OFIValid:        ofiOK,
			VPIN:            vpinVal,
			VPINValid:       vpinOK,
			HawkesIntensity: hawkesVal,
		})
	}
}
