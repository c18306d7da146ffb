package sqs

import (
	"github.com/aura-studio/funcframe/dynamic"
	funchttp "github.com/aura-studio/funcframe/http"
)

type ServeOption interface {
	apply(*serveOptionBag)
}

type serveOptionBag struct {
	sqs  []Option
	http []funchttp.ServeOption
}

type sqsServeOption struct{ opt Option }

func (o sqsServeOption) apply(b *serveOptionBag) {
	if o.opt != nil {
		b.sqs = append(b.sqs, o.opt)
	}
}

type httpServeOption struct{ opt funchttp.ServeOption }

func (o httpServeOption) apply(b *serveOptionBag) {
	if o.opt != nil {
		b.http = append(b.http, o.opt)
	}
}

func SQS(opt Option) ServeOption { return sqsServeOption{opt: opt} }

// HTTP configures the function pipeline messages are delivered to.
func HTTP(opt funchttp.Option) ServeOption { return httpServeOption{opt: opt} }

func Dyn(opt dynamic.Option) ServeOption { return httpServeOption{opt: opt} }
