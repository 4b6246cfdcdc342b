package config

// Build validates a hand-constructed Part, applying the directory default
// and compiling its rules. Parts returned by Load are already built.
func Build(p Part) (Part, error) {
	if p.Name == "" {
		return Part{}, &PartError{Part: p.Name, Err: errEmptyName}
	}
	if p.Directory == "" {
		p.Directory = "."
	}
	set, err := matcherCompile(p)
	if err != nil {
		return Part{}, &PartError{Part: p.Name, Err: err}
	}
	p.set = set
	return p, nil
}
