package jail

import (
	"context"
	"encoding/json"

	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// AtomicWriteJSON canonically serializes v and atomically writes it to
// root/rel. Every persisted wizard artifact goes through this helper.
func (fs *FileService) AtomicWriteJSON(ctx context.Context, root RootName, rel string, v any) error {
	data, err := fingerprint.CanonicalBytes(v)
	if err != nil {
		return wizarderr.Internal("cannot canonicalize: " + err.Error())
	}
	return fs.AtomicWrite(ctx, root, rel, data)
}

// AtomicWriteJSONIfMissing writes v to root/rel only if it does not
// already exist, returning whether it created the file. Used for
// bootstrapping default models.
func (fs *FileService) AtomicWriteJSONIfMissing(ctx context.Context, root RootName, rel string, v any) (bool, error) {
	if fs.Exists(ctx, root, rel) {
		return false, nil
	}
	if err := fs.AtomicWriteJSON(ctx, root, rel, v); err != nil {
		return false, err
	}
	return true, nil
}

// AtomicWriteText atomically writes a plain-text string to root/rel.
func (fs *FileService) AtomicWriteText(ctx context.Context, root RootName, rel, text string) error {
	return fs.AtomicWrite(ctx, root, rel, []byte(text))
}

// ReadJSON reads and JSON-decodes root/rel into a generic map.
func (fs *FileService) ReadJSON(ctx context.Context, root RootName, rel string) (map[string]any, error) {
	r, err := fs.OpenRead(ctx, root, rel)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, wizarderr.Internal("invalid json at " + rel + ": " + err.Error())
	}
	return out, nil
}

// AppendJSONL appends one canonical-JSON line to root/rel, the format
// used for the append-only decisions audit trail.
func (fs *FileService) AppendJSONL(ctx context.Context, root RootName, rel string, v any) error {
	data, err := fingerprint.CanonicalBytes(v)
	if err != nil {
		return wizarderr.Internal("cannot canonicalize: " + err.Error())
	}
	w, err := fs.OpenAppend(ctx, root, rel, true)
	if err != nil {
		return err
	}
	defer w.Close()

	if _, err := w.Write(append(data, '\n')); err != nil {
		return wizarderr.Internal(err.Error())
	}
	return nil
}
