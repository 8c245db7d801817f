package conf

import (
	"fmt"
	"reflect"
	"sync"

	"dario.cat/mergo"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-playground/validator/v10"

	"github.com/yola1107/blackjack/library/ext"
	"github.com/yola1107/blackjack/library/log/zap"
	zconf "github.com/yola1107/blackjack/library/log/zap/conf"
)

var validate = validator.New()

// LoadConfig reads the yaml file at path, fills unset fields from Default
// and validates the result.
func LoadConfig(path string) (config.Config, *Bootstrap, error) {
	c := config.New(
		config.WithSource(
			file.NewSource(path),
		),
	)
	if err := c.Load(); err != nil {
		return nil, nil, err
	}

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("scan config: %w", err)
	}
	if err := Complete(&bc); err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	return c, &bc, nil
}

// Complete merges defaults into bc and validates it.
func Complete(bc *Bootstrap) error {
	if err := mergo.Merge(bc, Default()); err != nil {
		return fmt.Errorf("merge defaults: %w", err)
	}
	if err := validate.Struct(bc); err != nil {
		return fmt.Errorf("bootstrap config invalid: %w", err)
	}
	return nil
}

// Watcher keeps hot reloadable sections of the live config in sync with
// the file.
type Watcher struct {
	mu   sync.Mutex
	subs map[string][]func(any)
}

func NewWatcher() *Watcher {
	return &Watcher{subs: make(map[string][]func(any))}
}

// Subscribe registers fn for updates of key. fn receives the new value
// after it has been copied into the live config.
func (w *Watcher) Subscribe(key string, fn func(any)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs[key] = append(w.subs[key], fn)
}

// Publish hands val to every subscriber of key.
func (w *Watcher) Publish(key string, val any) {
	w.mu.Lock()
	fns := append([]func(any){}, w.subs[key]...)
	w.mu.Unlock()
	for _, fn := range fns {
		fn(val)
	}
}

// Watch starts observing the hot reloadable keys of bc. Logger level and
// sensitive keys follow "log.logger" immediately.
func Watch(c config.Config, bc *Bootstrap, logger *zap.Logger) (*Watcher, error) {
	w := NewWatcher()
	if logger != nil {
		w.Subscribe("log.logger", func(val any) {
			v, ok := val.(*zconf.Logger)
			if !ok {
				return
			}
			if v.Level != logger.GetLevel() {
				_ = logger.SetLevel(v.Level)
			}
			logger.SetSensitive(v.Sensitive)
		})
	}

	for key, ptr := range map[string]any{
		"game":          bc.Game,
		"room.logCache": bc.Room.LogCache,
		"log.logger":    bc.Log.Logger,
	} {
		if c.Value(key).Load() == nil {
			log.Warnf("[config] %q not present in file, hot reload disabled for it", key)
			continue
		}
		if err := c.Watch(key, w.observer(key, ptr)); err != nil {
			return nil, fmt.Errorf("watch %q failed: %w", key, err)
		}
	}
	return w, nil
}

func (w *Watcher) observer(key string, target any) func(string, config.Value) {
	return func(_ string, val config.Value) {
		typ := reflect.TypeOf(target)
		if typ.Kind() != reflect.Pointer {
			log.Errorf("[config] %q target must be a pointer", key)
			return
		}
		newVal := reflect.New(typ.Elem()).Interface()
		if err := val.Scan(newVal); err != nil {
			log.Errorf("[config] scan failed: key=%q, err=%v", key, err)
			return
		}
		w.apply(key, target, newVal)
	}
}

// apply validates newVal, logs the field diff and copies it into target.
func (w *Watcher) apply(key string, target, newVal any) bool {
	if err := validate.Struct(newVal); err != nil {
		log.Errorf("[config] validation failed: key=%q, err=%v", key, err)
		return false
	}
	diff, err := ext.DiffLog(target, newVal)
	if err != nil {
		log.Errorf("[config] diff failed: key=%q, err=%v", key, err)
		return false
	}
	if diff == "" {
		return false
	}
	log.Warnf("[config] [%q] updated:\n%s", key, diff)
	if err := ext.DeepCopy(target, newVal); err != nil {
		log.Errorf("[config] update failed: key=%q, err=%v", key, err)
		return false
	}
	w.Publish(key, target)
	return true
}
