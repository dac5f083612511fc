// Command fqwatch prints a Firestore document or collection as it changes,
// reading through a firequery cache.
//
//	FQ_PROJECT_ID=demo fqwatch todos/1
//	FQ_PROJECT_ID=demo FQ_SUBSCRIBE=false FQ_PROVIDER=redis fqwatch todos
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/option"

	"github.com/unkn0wn-root/firequery"
	"github.com/unkn0wn-root/firequery/codec"
	fqfs "github.com/unkn0wn-root/firequery/firestore"
	"github.com/unkn0wn-root/firequery/genstore"
	asynchook "github.com/unkn0wn-root/firequery/hooks/async"
	fqzap "github.com/unkn0wn-root/firequery/log/zap"
	"github.com/unkn0wn-root/firequery/provider"
	"github.com/unkn0wn-root/firequery/provider/bigcache"
	"github.com/unkn0wn-root/firequery/provider/breaker"
	"github.com/unkn0wn-root/firequery/provider/redis"
	"github.com/unkn0wn-root/firequery/provider/ristretto"
	"github.com/unkn0wn-root/firequery/sloghooks"
)

type doc = map[string]any

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "fqwatch: .env: %v\n", err)
	}
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fqwatch: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fqwatch: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && ctx.Err() == nil {
		logger.Error("fqwatch failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("FQ_LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func run(ctx context.Context, cfg *Config, logger *zap.Logger) error {
	if cfg.Emulator != "" {
		// the client picks the emulator up from the environment
		if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Emulator); err != nil {
			return err
		}
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return fmt.Errorf("creating Firestore client: %w", err)
	}
	defer client.Close()

	hooks := asynchook.New(sloghooks.New(slog.New(slog.NewJSONHandler(os.Stderr, nil)), sloghooks.Options{
		SelfHealEvery: 10,
	}), 1, 256)
	defer hooks.Close()

	src, _ := cfg.source()
	mode := fqfs.Options{Subscribe: cfg.Subscribe, Source: src}
	key := firequery.Key{cfg.Path}
	log := logger.With(zap.String("path", cfg.Path), zap.Bool("subscribe", cfg.Subscribe))

	if cfg.isDocument() {
		c, err := newCache[fqfs.DocumentSnapshot[doc]](cfg, logger, hooks)
		if err != nil {
			return err
		}
		defer closeCache(c, log)

		o, err := fqfs.ObserveDocument(c, key, fqfs.Doc[doc](client.Doc(cfg.Path)), mode,
			firequery.ObserveOptions[fqfs.DocumentSnapshot[doc]]{OnChange: printResult[fqfs.DocumentSnapshot[doc]]})
		if err != nil {
			return err
		}
		defer o.Close()
		return wait(ctx, cfg, o)
	}

	c, err := newCache[fqfs.QuerySnapshot[doc]](cfg, logger, hooks)
	if err != nil {
		return err
	}
	defer closeCache(c, log)

	q := fqfs.Query[doc](client.Collection(cfg.Path).Query)
	o, err := fqfs.ObserveQuery(c, key, fqfs.Resolved(q), mode,
		firequery.ObserveOptions[fqfs.QuerySnapshot[doc]]{OnChange: printResult[fqfs.QuerySnapshot[doc]]})
	if err != nil {
		return err
	}
	defer o.Close()
	return wait(ctx, cfg, o)
}

// wait returns after the first confirmed result in one-shot mode, or when
// ctx ends while subscribed.
func wait[V any](ctx context.Context, cfg *Config, o *firequery.Observer[V]) error {
	if cfg.Subscribe {
		<-ctx.Done()
		return nil
	}
	r, err := o.Wait(ctx)
	if err != nil {
		return err
	}
	return r.Err
}

func newCache[V any](cfg *Config, logger *zap.Logger, hooks firequery.Hooks) (*firequery.Cache[V], error) {
	opts := firequery.Options[V]{
		Namespace:  cfg.Namespace,
		Logger:     fqzap.New(logger),
		Hooks:      hooks,
		PersistTTL: cfg.PersistTTL,
	}
	if cfg.Provider == "none" {
		return firequery.New(opts)
	}

	cd, err := newCodec[V](cfg.Codec)
	if err != nil {
		return nil, err
	}
	// Firestore caps documents at 1 MiB; query results are bounded generously
	opts.Codec = codec.Limit[V]{Inner: cd, MaxDecode: 32 << 20}

	var p provider.Provider
	switch cfg.Provider {
	case "ristretto":
		p, err = ristretto.New(ristretto.Config{MaxCost: 64 << 20})
	case "bigcache":
		p, err = bigcache.New(bigcache.Config{LifeWindow: cfg.PersistTTL, HardMaxCacheSizeMB: 64})
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		rp, err := redis.New(redis.Config{Client: rdb, Prefix: "fq:"})
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("provider redis: %w", err)
		}
		if err := rp.Ping(context.Background()); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("%s: %w", cfg.RedisAddr, err)
		}
		p = breaker.New(rp, breaker.Config{
			Name: "redis",
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("provider circuit changed", zap.String("name", name),
					zap.Stringer("from", from), zap.Stringer("to", to))
			},
		})
		// generations shared with every other process using this namespace
		opts.GenStore = genstore.NewRedis(rdb, cfg.Namespace, genstore.WithTTL(cfg.GenTTL), genstore.WithClientOwnership())
	}
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.Provider, err)
	}
	opts.Provider = p
	return firequery.New(opts)
}

func newCodec[V any](name string) (codec.Codec[V], error) {
	switch name {
	case "msgpack":
		return codec.Msgpack[V]{}, nil
	case "cbor":
		return codec.NewCBOR[V](codec.MaxNestedLevels(32))
	default:
		return codec.JSON[V]{}, nil
	}
}

func closeCache[V any](c *firequery.Cache[V], log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		log.Warn("closing cache", zap.Error(err))
	}
}

func printResult[V any](r firequery.Result[V]) {
	out := struct {
		Status    string    `json:"status"`
		Data      any       `json:"data,omitempty"`
		Error     string    `json:"error,omitempty"`
		UpdatedAt time.Time `json:"updatedAt"`
		FromStore bool      `json:"fromStore,omitempty"`
	}{
		Status:    r.Status.String(),
		UpdatedAt: r.UpdatedAt,
		FromStore: r.FromStore,
	}
	if r.HasData() {
		out.Data = r.Data
	}
	if r.Err != nil {
		out.Error = strings.TrimSpace(r.Err.Error())
	}
	b, err := json.Marshal(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fqwatch: encode result: %v\n", err)
		return
	}
	fmt.Println(string(b))
}
