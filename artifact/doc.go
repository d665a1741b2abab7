// Package artifact locates and fetches the model files processing units
// load at construction time.
//
// A Manifest lists, per unit type, the files a unit needs relative to the
// SDK root. A Provider is asked to make them present before a block is
// built: CheckOnly only verifies, HTTPProvider downloads what is missing
// from the published model archive.
//
//	p := artifact.NewHTTPProvider("/opt/facesdk")
//	if err := p.Ensure(ctx, "FACE_DETECTOR"); err != nil {
//	    // errors.Is(err, errors.ErrMissingArtifact)
//	}
package artifact
