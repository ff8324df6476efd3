package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"

	"podium-lobby/internal/scene"
)

const (
	// glTF 的动画时长需要解析采样器访问器，这里统一给一个片段时长
	DefaultClipDuration = time.Second

	maxAssetBytes = 64 << 20
)

var (
	ErrImport     = errors.New("asset import failed")
	ErrEmptyAsset = errors.New("asset contains no meshes")
)

// Importer 下载 GLB 并在场景中构建对应节点
type Importer struct {
	client *http.Client
}

func NewImporter(timeout time.Duration) *Importer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Importer{client: &http.Client{Timeout: timeout}}
}

func (im *Importer) Import(
	ctx context.Context,
	eng scene.Engine,
	url string,
	opts scene.ImportOptions,
) (*scene.Imported, error) {
	doc, err := im.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImport, err)
	}

	return Build(eng, doc, opts)
}

func (im *Importer) fetch(ctx context.Context, url string) (*gltf.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc := new(gltf.Document)
	if err := gltf.NewDecoder(io.LimitReader(resp.Body, maxAssetBytes)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode gltf: %w", err)
	}

	return doc, nil
}

// Build 把解析好的文档转成场景节点：每个图元一个表面，第一个蒙皮作为骨骼，动画转成动画组
func Build(eng scene.Engine, doc *gltf.Document, opts scene.ImportOptions) (*scene.Imported, error) {
	if doc == nil || len(doc.Meshes) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrImport, ErrEmptyAsset)
	}

	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}

	root := eng.NewTransformNode("glbRoot")
	root.SetScaling(mgl64.Vec3{scale, scale, scale})
	root.SetPosition(opts.Position)

	res := &scene.Imported{Root: root}

	for i, mesh := range doc.Meshes {
		name := mesh.Name
		if name == "" {
			name = fmt.Sprintf("mesh%d", i)
		}

		for j := range mesh.Primitives {
			surface := eng.NewMesh(fmt.Sprintf("%s_%d", name, j))
			surface.SetMaterial(eng.NewPBRMaterial(name+"Mat", scene.NewColor3(1, 1, 1)))
			surface.SetParent(root)
			res.Surfaces = append(res.Surfaces, surface)
		}
	}

	if len(doc.Skins) > 0 {
		skin := doc.Skins[0]
		res.Skeleton = &scene.Skeleton{Name: skin.Name, Joints: len(skin.Joints)}
	}

	for i, anim := range doc.Animations {
		name := anim.Name
		if name == "" {
			name = fmt.Sprintf("anim%d", i)
		}
		res.Clips = append(res.Clips, eng.NewAnimationGroup(name, DefaultClipDuration))
	}

	return res, nil
}
