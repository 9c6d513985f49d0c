package bootstrap

import (
	"context"
	"encoding/json"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

// readJSONInto decodes root/rel directly into a typed destination,
// unlike jail.FileService.ReadJSON which only decodes into a generic map.
func readJSONInto(ctx context.Context, fs *jail.FileService, rel string, dst any) error {
	r, err := fs.OpenRead(ctx, jail.RootWizards, rel)
	if err != nil {
		return err
	}
	defer r.Close()
	dec := json.NewDecoder(r)
	return dec.Decode(dst)
}
