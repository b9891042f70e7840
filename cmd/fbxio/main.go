// Command fbxio exports scene descriptions through an fbxio library backend
// and inspects files read back through it.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	fbxio "github.com/flywave/go-fbxio"
	"github.com/flywave/go-fbxio/internal/config"
	"github.com/flywave/go-fbxio/internal/logger"
	"github.com/flywave/go-fbxio/internal/scenefile"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: fbxio <command> [flags] <input>

commands:
  export   write a .yaml, .gltf or .glb scene through the configured library
  import   read a file through the library and print its object tree
  normals  print the corner normals each mesh of a scene would export
  config   write the effective configuration as YAML

run "fbxio <command> -h" for the flags of a command
the native backend loads -lib, usually %s
`, fbxio.DefaultLibraryName())
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "export":
		err = runExport(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:], os.Stdout)
	case "normals":
		err = runNormals(os.Args[2:], os.Stdout)
	case "config":
		err = runConfig(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "fbxio: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fbxio:", err)
		os.Exit(1)
	}
}

// setup parses fs, loads the configuration and starts logging.
func setup(fs *flag.FlagSet, args []string) (*config.Config, error) {
	var f config.Flags
	f.Register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(&f)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.LogFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Console:    true,
	})
	return cfg, nil
}

func openLibrary(cfg *config.Config) (fbxio.Library, error) {
	log := logger.Named("library")
	if cfg.Library.Backend == config.BackendGltf {
		return fbxio.NewGltfLibrary(fbxio.GltfOptions{FlipYZ: cfg.Export.FlipYZ, Logger: log}), nil
	}
	paths, err := fbxio.NewNameEncoder(cfg.Encoding.Paths)
	if err != nil {
		return nil, err
	}
	names, err := fbxio.NewNameEncoder(cfg.Encoding.Names)
	if err != nil {
		return nil, err
	}
	return fbxio.OpenNativeLibrary(cfg.Library.Path, fbxio.NativeOptions{
		Paths:      paths,
		Names:      names,
		Diagnostic: cfg.Library.DiagnosticResult,
		Logger:     log,
	})
}

func buildOptions(cfg *config.Config) (fbxio.BuildOptions, error) {
	names, err := fbxio.NewNameEncoder(cfg.Encoding.Names)
	if err != nil {
		return fbxio.BuildOptions{}, err
	}
	format, err := fbxio.ParseFormat(cfg.Export.Format)
	if err != nil {
		return fbxio.BuildOptions{}, err
	}
	return fbxio.BuildOptions{
		Format:    format,
		UnitScale: cfg.Export.UnitScale,
		Flatten:   fbxio.FlattenOptions{OneBasedMaterialSlots: cfg.Export.OneBasedMaterialSlots},
		Names:     names,
		Logger:    logger.Named("export"),
	}, nil
}

// loadScene reads YAML scene descriptions and glTF files.
func loadScene(path string) ([]fbxio.SceneObject, float64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := scenefile.Load(path)
		if err != nil {
			return nil, 0, err
		}
		objs, err := f.SceneObjects()
		return objs, f.UnitScale, err
	case ".gltf", ".glb":
		doc, err := gltf.Open(path)
		if err != nil {
			return nil, 0, err
		}
		objs, err := fbxio.SceneFromGltf(doc)
		return objs, 0, err
	}
	return nil, 0, fmt.Errorf("unsupported scene file %s", path)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("o", "", "Output file")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 || *out == "" {
		return fmt.Errorf("usage: fbxio export -o <output> <scene>")
	}

	objs, unit, err := loadScene(fs.Arg(0))
	if err != nil {
		return err
	}
	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}
	if unit > 0 {
		opts.UnitScale = unit
	}

	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	logger.Log.Info("exporting",
		zap.String("scene", fs.Arg(0)),
		zap.String("output", *out),
		zap.String("backend", cfg.Library.Backend))
	return fbxio.NewExporter(lib, opts).Export(objs, *out)
}

func runImport(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	out := fs.String("o", "", "Re-export the imported scene as .gltf or .glb")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: fbxio import [-o output.glb] <file>")
	}

	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	ib, err := lib.Import(fs.Arg(0))
	if err != nil {
		return err
	}
	data := ib.Data
	objs := ib.Scene()
	ib.Release()

	printTree(w, data)

	if *out == "" {
		return nil
	}
	gl := fbxio.NewGltfLibrary(fbxio.GltfOptions{FlipYZ: cfg.Export.FlipYZ, Logger: logger.Named("gltf")})
	defer gl.Close()
	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}
	opts.Format = fbxio.FormatASCII
	if strings.EqualFold(filepath.Ext(*out), ".glb") {
		opts.Format = fbxio.FormatBinary
	}
	opts.UnitScale = data.UnitScale
	// imported slots are already 0-based
	opts.Flatten.OneBasedMaterialSlots = false
	return fbxio.NewExporter(gl, opts).Export(objs, *out)
}

func printTree(w io.Writer, d *fbxio.ExportData) {
	format := fbxio.FormatASCII
	if d.IsBinary {
		format = fbxio.FormatBinary
	}
	fmt.Fprintf(w, "format: %s  unit scale: %g  materials: %d\n", format, d.UnitScale, len(d.Materials))
	for i, m := range d.Materials {
		c := m.Surface.BaseColor
		fmt.Fprintf(w, "  material %d %q base (%.3g %.3g %.3g %.3g) metal %.3g rough %.3g\n",
			i, m.Name, c.X, c.Y, c.Z, c.W, m.Surface.Metalness, m.Surface.SpecularRoughness)
	}
	d.Root.Walk(func(o *fbxio.Object, depth int) bool {
		fmt.Fprintf(w, "%s%s", strings.Repeat("  ", depth), o.Name)
		if m := o.Mesh; m != nil {
			fmt.Fprintf(w, "  [%s: %d verts, %d faces, %d uv, %d normal sets, slots %v]",
				m.Name, m.VertexCount(), m.PolyCount(), len(m.UVSets), len(m.NormalSets), o.MaterialSlots)
		}
		fmt.Fprintln(w)
		return true
	})
}

func runNormals(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("normals", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "Print every corner normal")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: fbxio normals [-v] <scene>")
	}
	objs, _, err := loadScene(fs.Arg(0))
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	flatten := fbxio.FlattenOptions{OneBasedMaterialSlots: cfg.Export.OneBasedMaterialSlots}
	var walk func(o fbxio.SceneObject, path string) error
	walk = func(o fbxio.SceneObject, path string) error {
		path += "/" + o.Name()
		if geom, ok := o.Geometry(); ok {
			m, err := fbxio.FlattenMesh(geom, len(o.MaterialSlots()), flatten)
			if err != nil {
				return err
			}
			sets, err := fbxio.ResolveNormals(geom, m, lib)
			if err != nil {
				return fmt.Errorf("object %q: %w", path, err)
			}
			fmt.Fprintf(w, "%s: %d corners, %s\n", path, m.IndexCount(), normalSource(geom, sets))
			if *verbose {
				for _, set := range sets {
					for i, n := range set.Normals {
						fmt.Fprintf(w, "  %4d v%-4d (%.4f %.4f %.4f)\n", i, m.Indices[i], n.X, n.Y, n.Z)
					}
				}
			}
		}
		for _, c := range o.Children() {
			if err := walk(c, path); err != nil {
				return err
			}
		}
		return nil
	}
	for _, o := range objs {
		if err := walk(o, fbxio.ROOT_NAME); err != nil {
			return err
		}
	}
	return nil
}

func normalSource(geom fbxio.SourceMesh, sets []fbxio.NormalSet) string {
	if len(sets) == 0 {
		return "no normals"
	}
	if _, ok := geom.CornerNormals(); ok {
		return "split normals"
	}
	return "derived from face normals"
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	out := fs.String("o", "", "Write to this path instead of the user config directory")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if *out != "" {
		return cfg.SaveTo(*out)
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Println(filepath.Join(config.ConfigDir(), "fbxio.yaml"))
	return nil
}
