package connector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStack(t *testing.T) {
	t.Run("ensure-LIFO-order", func(t *testing.T) {
		var order []string
		s := new(stack)
		for _, name := range []string{"nic", "ip-detach", "ip-release"} {
			s.Push(func(ctx context.Context) error {
				order = append(order, name)
				return nil
			})
		}
		require.NoError(t, s.Destroy(t.Context()))
		require.Equal(t, []string{"ip-release", "ip-detach", "nic"}, order)
	})
	t.Run("ensure-errors-joined", func(t *testing.T) {
		err1 := fmt.Errorf("one")
		err2 := fmt.Errorf("two")
		s := new(stack)
		s.Push(func(ctx context.Context) error {
			return err1
		})
		s.Push(func(ctx context.Context) error {
			return err2
		})
		s.Push(func(ctx context.Context) error {
			return nil
		})
		err := s.Destroy(t.Context())
		require.ErrorIs(t, err, err1)
		require.ErrorIs(t, err, err2)
	})
	t.Run("emptied-after-destroy", func(t *testing.T) {
		calls := 0
		s := new(stack)
		s.Push(func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, s.Destroy(t.Context()))
		require.NoError(t, s.Destroy(t.Context()))
		require.Equal(t, 1, calls)
	})
}
