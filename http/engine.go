package http

import (
	"fmt"
	"regexp"

	"github.com/aura-studio/funcframe/dynamic"
	"github.com/aura-studio/funcframe/function"
	"github.com/aura-studio/funcframe/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Engine struct {
	*Options
	*gin.Engine
	*dynamic.Dynamic

	signature function.SignatureType
	ignored   *regexp.Regexp
	logger    *zap.Logger
}

// NewEngine builds the invocation pipeline. Every configuration problem is
// reported here as a *function.ConfigurationError; a returned Engine serves
// requests without further validation.
func NewEngine(opts ...ServeOption) (*Engine, error) {
	bag := &serveOptionBag{}
	bag.apply(opts...)

	e := &Engine{
		Options: NewOptions(bag.http...),
	}

	if !e.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	e.Engine = gin.New()

	e.logger = e.Logger
	if e.logger == nil {
		e.logger = logging.Default()
	}

	sig, err := function.ParseSignatureType(e.SignatureType)
	if err != nil {
		return nil, err
	}
	e.signature = sig

	if e.Timeout < 0 {
		return nil, &function.ConfigurationError{Field: "timeout", Err: fmt.Errorf("negative timeout %v", e.Timeout)}
	}
	if e.MaxBodyBytes <= 0 {
		e.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if e.ignored, err = compileIgnoredRoutes(e.Options.IgnoredRoutes, sig); err != nil {
		return nil, err
	}

	if len(bag.dynamic) > 0 {
		e.Dynamic = dynamic.NewDynamic(bag.dynamic...)
	}
	if e.Options.Function == nil {
		if e.Options.Function, err = e.resolve(); err != nil {
			return nil, err
		}
	}
	if e.Options.Function.Signature != sig {
		return nil, &function.ConfigurationError{
			Field: "signature type",
			Err:   fmt.Errorf("function %q is a %s function, configured as %s", e.Options.Function.Name, e.Options.Function.Signature, sig),
		}
	}

	e.InstallHandlers()

	e.logger.Info("function pipeline ready",
		zap.String("target", e.Options.Function.Name),
		zap.String("signature", string(sig)),
		zap.String("kind", e.Options.Function.Kind.String()),
		zap.Duration("timeout", e.Timeout),
	)
	return e, nil
}

// Signature is the parsed signature type the engine dispatches.
func (e *Engine) Signature() function.SignatureType {
	return e.signature
}

// resolve finds Target in the function registry, then among dynamic packages.
func (e *Engine) resolve() (*function.Function, error) {
	if e.Target == "" {
		return nil, &function.ConfigurationError{Field: "target", Err: fmt.Errorf("no function target configured")}
	}
	if _, ok := function.Lookup(e.Target); ok || e.Dynamic == nil {
		return function.Resolve(e.Target, e.signature)
	}
	return e.Dynamic.Function(e.Target, e.signature)
}
