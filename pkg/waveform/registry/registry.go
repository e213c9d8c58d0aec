package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/xaionaro-go/audiosync/pkg/waveform/decoder"
)

type DecoderFactory interface {
	NewDecoder() (decoder.Decoder, error)
}

type decoderFactoryWithPriority struct {
	Priority int
	DecoderFactory
}

var (
	decoderFactoryRegistry       = map[reflect.Type]decoderFactoryWithPriority{}
	decoderFactoryRegistryLocker sync.Mutex
)

func RegisterDecoderFactory(
	priority int,
	decoderFactory DecoderFactory,
) {
	t := reflect.ValueOf(decoderFactory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	decoderFactoryRegistryLocker.Lock()
	defer decoderFactoryRegistryLocker.Unlock()
	if _, ok := decoderFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of Decoder of type %v", t))
	}
	decoderFactoryRegistry[t] = decoderFactoryWithPriority{
		Priority:       priority,
		DecoderFactory: decoderFactory,
	}
}

// DecoderFactories returns the registered factories, highest priority first.
func DecoderFactories() []DecoderFactory {
	decoderFactoryRegistryLocker.Lock()
	var factoriesWithPriorities []decoderFactoryWithPriority
	for _, factory := range decoderFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	decoderFactoryRegistryLocker.Unlock()

	sort.SliceStable(factoriesWithPriorities, func(i, j int) bool {
		if factoriesWithPriorities[i].Priority != factoriesWithPriorities[j].Priority {
			return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
		}
		return reflect.TypeOf(factoriesWithPriorities[i].DecoderFactory).String() <
			reflect.TypeOf(factoriesWithPriorities[j].DecoderFactory).String()
	})

	var factories []DecoderFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.DecoderFactory)
	}

	return factories
}
