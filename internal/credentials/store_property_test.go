package credentials

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestStoreRoundTripProperty(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), testKeyring(testKey), testLogger())

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a stored value reads back unchanged", prop.ForAll(
		func(key, value string) bool {
			if err := store.Set(ctx, key, value); err != nil {
				t.Logf("Set failed: %v", err)
				return false
			}
			got, ok, err := store.Get(ctx, key)
			if err != nil {
				t.Logf("Get failed: %v", err)
				return false
			}
			return ok && got == value
		},
		gen.Identifier(),
		gen.AnyString(),
	))

	properties.Property("deleted keys read as absent", prop.ForAll(
		func(key, value string) bool {
			if err := store.Set(ctx, key, value); err != nil {
				return false
			}
			if err := store.Delete(ctx, key); err != nil {
				return false
			}
			_, ok, err := store.Get(ctx, key)
			return err == nil && !ok
		},
		gen.Identifier(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
