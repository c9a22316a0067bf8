// Package prebuilt provides ready-to-use graphs built on the graph package.
//
// # Reflexion
//
// NewReflexionGraph drafts an answer, runs the searches the draft asks for and
// revises the answer, repeating research and revision a fixed number of times:
//
//	START -> draft -> execute_tools -> revisor -> (execute_tools | END)
//
// The collaborators are interfaces so any model or search backend can be
// plugged in:
//
//	g, err := prebuilt.NewReflexionGraph(prebuilt.ReflexionConfig{
//		Drafter:       drafter,
//		Researcher:    search,
//		Reviser:       reviser,
//		MaxIterations: 2,
//	})
//	if err != nil {
//		return err
//	}
//
//	res, err := g.Run(ctx, "essay-1", prebuilt.NewReflexionInput("How can small businesses use AI?"))
//	if err != nil {
//		return err
//	}
//	answer, _ := prebuilt.FinalAnswer(res.State)
//
// The conversation is kept under the "messages" key as Message values, so it
// survives a round trip through any checkpoint store.
package prebuilt
